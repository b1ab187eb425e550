// Package app wires the configuration, transport and workflow services into
// one runnable bot.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"herald/internal/anchor"
	"herald/internal/config"
	"herald/internal/digest"
	"herald/internal/gtasks"
	"herald/internal/notifier"
	"herald/internal/reminder"
	"herald/internal/router"
	"herald/internal/transport"
	"herald/internal/transport/telegram"
	"herald/internal/twitch"
	"herald/internal/youtube"
	"herald/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	adapter *telegram.Adapter
	disp    *notifier.Dispatcher
	anchors *anchor.Manager
	rt      *router.Router

	tw     *twitch.Client
	poller *twitch.Poller
	yt     *youtube.Client
	tasks  *gtasks.Client
	rem    *reminder.Scheduler
	dig    *digest.Scheduler

	updates chan transport.Update
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, rootLog := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log := rootLog.With(logx.String("comp", "app"))
	cfgm.SetLogger(rootLog.With(logx.String("comp", "config")))

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, 10*time.Second),
	}, rootLog.With(logx.String("comp", "telegram")))
	if err != nil {
		logs.Close()
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		adapter: adapter,
		updates: make(chan transport.Update, 256),
	}

	a.disp = notifier.New(adapter, 20, rootLog.With(logx.String("comp", "notifier")))
	a.anchors = anchor.New(adapter,
		config.DurationOr(cfg.Anchor.TTL, 15*time.Minute),
		rootLog.With(logx.String("comp", "anchor")))

	if cfg.Twitch.Ready() {
		a.tw = twitch.New(twitch.Config{
			ClientID:     cfg.Twitch.ClientID,
			ClientSecret: cfg.Twitch.ClientSecret,
			Username:     cfg.Twitch.Username,
		}, rootLog.With(logx.String("comp", "twitch")))
		a.poller = twitch.NewPoller(a.tw,
			config.DurationOr(cfg.Twitch.PollInterval, time.Minute),
			rootLog.With(logx.String("comp", "poller")))
	} else {
		log.Info("twitch credentials missing, live monitor disabled")
	}

	if cfg.YouTube.Ready() {
		a.yt = youtube.New(youtube.Config{
			APIKey:    cfg.YouTube.APIKey,
			ChannelID: cfg.YouTube.ChannelID,
		}, rootLog.With(logx.String("comp", "youtube")))
	} else {
		log.Info("youtube credentials missing, announcement enrichment disabled")
	}

	if cfg.Tasks.Ready() {
		a.tasks = gtasks.New(gtasks.Config{
			ClientID:     cfg.Tasks.ClientID,
			ClientSecret: cfg.Tasks.ClientSecret,
			RefreshToken: cfg.Tasks.RefreshToken,
			ListID:       cfg.Tasks.ListID,
		}, rootLog.With(logx.String("comp", "gtasks")))
	} else {
		log.Info("tasks credentials missing, schedule views and digest disabled")
	}

	if a.tw != nil {
		a.rem = reminder.New(a.tw, adapter,
			func() []int64 { return cfgm.Get().ReminderTargets() },
			a.reminderContent,
			config.DurationOr(cfg.Reminder.Interval, time.Hour),
			rootLog.With(logx.String("comp", "reminder")))
	}

	var prov digest.Provider
	if a.tasks != nil {
		prov = a.tasks
	}
	a.dig = digest.New(digest.Config{
		Times:    cfg.DigestTimes(),
		ImageURL: cfg.Digest.ImageURL,
		Targets:  cfg.DigestTargets(),
	}, prov, a.disp,
		func() any { return router.ClanButton(cfgm.Get().Social) },
		cfg.Location(),
		rootLog.With(logx.String("comp", "digest")))

	var rtTasks router.Tasks
	if a.tasks != nil {
		rtTasks = a.tasks
	}
	a.rt = router.New(adapter, a.anchors, rtTasks, cfgm.Get,
		rootLog.With(logx.String("comp", "router")))
	a.rt.TestAnnounce = a.testAnnounce

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}
	if err := a.adapter.UpdateMenuCommands(runCtx, router.Commands()); err != nil {
		a.log.Warn("command menu update failed", logx.Err(err))
	}
	a.showStartupKeyboard(runCtx)

	if err := a.dig.Start(runCtx); err != nil {
		a.log.Warn("digest start failed", logx.Err(err))
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.rt.Run(runCtx, a.updates)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.monitorLoop(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reloadLoop(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.notifySystemd(runCtx)
	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.cancel != nil {
		a.cancel()
	}
	if a.rem != nil {
		a.rem.Stop()
	}
	a.dig.Stop()
	a.anchors.Shutdown()

	err := a.adapter.Stop(ctx)
	a.wg.Wait()
	a.log.Info("stopped")
	a.logs.Close()
	return err
}

// showStartupKeyboard posts the silent keyboard hint to the announce chats
// so the persistent reply keyboard appears for everyone.
func (a *App) showStartupKeyboard(ctx context.Context) {
	opt := &transport.SendOptions{
		Silent:             true,
		ReplyMarkupAdapter: router.ReplyKeyboard(),
	}
	for _, chatID := range a.cfgm.Get().Telegram.AnnounceChatIDs {
		_, err := a.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID},
			"Клавиатура активна. Нажмите кнопку ниже, чтобы открыть меню.", opt)
		if err != nil {
			a.log.Warn("startup keyboard message failed",
				logx.Int64("chat_id", chatID),
				logx.Err(err))
		}
	}
}

// reloadLoop consumes config updates. Logging is re-applied live; the other
// sections are wired at construction time and need a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("config reloaded; transport, provider and digest changes apply on restart")
		}
	}
}

// notifySystemd signals readiness and services the watchdog when one is
// armed. Outside systemd both calls are no-ops.
func (a *App) notifySystemd(ctx context.Context) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify: ready")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}
