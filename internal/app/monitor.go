package app

import (
	"context"
	"time"

	"herald/internal/config"
	"herald/internal/notifier"
	"herald/internal/router"
	"herald/internal/youtube"
	"herald/pkg/logx"
	"herald/pkg/tgui"
)

// driverTick is the cadence of the monitor loop itself. The poller's own
// interval gates the actual API calls.
const driverTick = 5 * time.Second

const (
	reminderText = "⏰ Мы всё ещё на стриме, врывайся! 😏"
	announceLead = "🔴 <b>Стрим начался! Забегай, я тебя жду :)</b>"
)

// monitorLoop watches for new broadcasts and announces them.
func (a *App) monitorLoop(ctx context.Context) {
	if a.poller == nil {
		return
	}

	t := time.NewTicker(driverTick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if !a.poller.Due(now) {
				continue
			}
			sess, err := a.poller.PollOnce(ctx)
			if err != nil {
				a.log.Warn("status poll failed", logx.Err(err))
				continue
			}
			if sess == nil {
				continue
			}
			a.log.Info("new broadcast detected",
				logx.String("session_id", sess.ID),
				logx.String("title", sess.Title))
			a.announce(ctx, sess.Title)
			if a.rem != nil {
				a.rem.StartFor(ctx, sess.ID)
			}
		}
	}
}

// announce looks up the YouTube mirror of the broadcast and posts the start
// message everywhere. Blocks for up to attempts*delay while YouTube indexes
// the new broadcast.
func (a *App) announce(ctx context.Context, title string) {
	cfg := a.cfgm.Get()
	ytLive := a.lookupLive(ctx, cfg)

	if title == "" {
		if ytLive != nil {
			title = ytLive.Title
		} else {
			title = "Стрим"
		}
	}

	photo := cfg.Announce.ImageURL
	videoID := ""
	if ytLive != nil {
		videoID = ytLive.VideoID
		if ytLive.ThumbURL != "" {
			photo = ytLive.ThumbURL
		}
	}

	a.disp.Broadcast(ctx, cfg.Telegram.AnnounceChatIDs, notifier.Message{
		Text:     announceText(title, cfg.Announce.Hashtags),
		PhotoURL: photo,
		Markup:   router.StreamButtons(cfg.Social, cfg.YouTube.ChannelID, cfg.Twitch.Username, videoID),
	})
}

func (a *App) lookupLive(ctx context.Context, cfg *config.Config) *youtube.LiveItem {
	if a.yt == nil {
		return nil
	}
	attempts := cfg.Announce.LookupAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := config.DurationOr(cfg.Announce.LookupDelay, 10*time.Second)
	return a.yt.FindLive(ctx, attempts, delay)
}

func announceText(title, hashtags string) string {
	text := announceLead + "\n\n<b>" + tgui.Esc(title) + "</b>"
	if hashtags != "" {
		text += "\n\n" + tgui.Esc(hashtags)
	}
	return text
}

// reminderContent builds the nudge at send time so social links track the
// live config.
func (a *App) reminderContent() (string, any) {
	cfg := a.cfgm.Get()
	return reminderText, router.StreamButtons(cfg.Social, cfg.YouTube.ChannelID, cfg.Twitch.Username, "")
}

// testAnnounce drives the full announcement path without a real broadcast:
// YouTube lookup, announce post, and a single nudge a few seconds later.
func (a *App) testAnnounce(ctx context.Context) {
	cfg := a.cfgm.Get()
	ytLive := a.lookupLive(ctx, cfg)

	title := "Тестовый пост"
	videoID := ""
	photo := cfg.Announce.ImageURL
	if ytLive != nil {
		title = ytLive.Title
		videoID = ytLive.VideoID
		if ytLive.ThumbURL != "" {
			photo = ytLive.ThumbURL
		}
	}

	a.disp.Broadcast(ctx, cfg.Telegram.AnnounceChatIDs, notifier.Message{
		Text:     announceText(title, cfg.Announce.Hashtags),
		PhotoURL: photo,
		Markup:   router.StreamButtons(cfg.Social, cfg.YouTube.ChannelID, cfg.Twitch.Username, videoID),
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
		text, markup := a.reminderContent()
		a.disp.Broadcast(ctx, cfg.ReminderTargets(), notifier.Message{
			Text:   text,
			Markup: markup,
		})
	}()
}
