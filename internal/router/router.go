// Package router consumes the inbound update stream and serves the menu,
// schedule views and commands. All views render into the caller's anchor
// message, so repeated taps never flood the chat.
package router

import (
	"context"
	"strconv"
	"strings"
	"time"

	"herald/internal/anchor"
	"herald/internal/config"
	"herald/internal/gtasks"
	"herald/internal/schedule"
	"herald/internal/transport"
	"herald/pkg/logx"
)

// Tasks is the schedule source; nil disables the schedule views' content.
type Tasks interface {
	ListIncomplete(ctx context.Context) ([]gtasks.Item, error)
}

type Router struct {
	adapter transport.Adapter
	anchors *anchor.Manager
	tasks   Tasks
	cfg     func() *config.Config
	log     logx.Logger

	// TestAnnounce simulates a stream start for the hidden /test command.
	// Wired by the app; nil disables the command.
	TestAnnounce func(ctx context.Context)
}

func New(adapter transport.Adapter, anchors *anchor.Manager, tasks Tasks, cfg func() *config.Config, log logx.Logger) *Router {
	return &Router{
		adapter: adapter,
		anchors: anchors,
		tasks:   tasks,
		cfg:     cfg,
		log:     log,
	}
}

// Commands returns the visible bot command menu. The test command is
// deliberately absent.
func Commands() []transport.BotCommand {
	return []transport.BotCommand{
		{Command: "today", Description: "📅 Стримы сегодня"},
		{Command: "week", Description: "📅 Стримы на неделю"},
		{Command: "month", Description: "📅 Стримы за месяц (по неделям)"},
		{Command: "menu", Description: "Открыть меню"},
	}
}

// Run consumes updates until ctx is done or the channel closes. Each update
// is handled in its own goroutine: a slow schedule fetch must not delay
// unrelated button taps.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			go r.dispatch(ctx, up)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			r.handleMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			r.handleCallback(ctx, up.Callback)
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		r.handleCommand(ctx, m, commandName(text))
		return
	}
	if text == KeyboardLabel {
		r.showMenu(ctx, m.ChatID, m.FromID)
		r.deleteTrigger(ctx, m)
	}
}

// commandName extracts "today" from "/today@some_bot arg".
func commandName(text string) string {
	cmd := strings.Fields(text)[0]
	cmd = strings.TrimPrefix(cmd, "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

func (r *Router) handleCommand(ctx context.Context, m *transport.Message, cmd string) {
	switch cmd {
	case "menu":
		r.showMenu(ctx, m.ChatID, m.FromID)
	case "today":
		r.showToday(ctx, m.ChatID, m.FromID)
	case "week":
		r.showWeek(ctx, m.ChatID, m.FromID)
	case "month":
		r.showMonth(ctx, m.ChatID, m.FromID)
	case "test":
		r.runTest(ctx, m)
		return // keep the trigger so the OK reply has context
	default:
		return // foreign command, leave the message alone
	}
	r.deleteTrigger(ctx, m)
}

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	if err := r.adapter.AnswerCallback(ctx, cb.ID, ""); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}

	chatID, userID := cb.ChatID, cb.FromID
	parts := strings.Split(cb.Data, "|")
	switch {
	case cb.Data == "menu|main":
		r.showMenu(ctx, chatID, userID)
	case cb.Data == "menu|close":
		r.anchors.Close(ctx, chatID, userID)
	case cb.Data == "menu|socials":
		r.anchors.ShowOrUpdate(ctx, chatID, userID, socialsText, socialsKB(r.cfg().Social))
	case cb.Data == "menu|booking":
		r.anchors.ShowOrUpdate(ctx, chatID, userID, bookingText, bookingKB(r.cfg().Social))
	case cb.Data == "booking|rules":
		r.anchors.ShowOrUpdate(ctx, chatID, userID, bookingRulesText, bookingKB(r.cfg().Social))
	case cb.Data == "t|today":
		r.showToday(ctx, chatID, userID)
	case cb.Data == "t|week":
		r.showWeek(ctx, chatID, userID)
	case cb.Data == "t|month":
		r.showMonth(ctx, chatID, userID)
	case len(parts) == 3 && parts[0] == "m":
		r.showMonthPage(ctx, chatID, userID, parts[1], parts[2])
	}
}

func (r *Router) showMenu(ctx context.Context, chatID, userID int64) {
	r.anchors.ShowOrUpdate(ctx, chatID, userID, menuText, mainMenuKB(r.cfg().Social))
}

func (r *Router) showToday(ctx context.Context, chatID, userID int64) {
	loc := r.cfg().Location()
	d := localDay(time.Now(), loc)
	text := schedule.FormatRange(r.fetchEvents(ctx, loc), d, d, schedule.TodayTitle(d))
	r.anchors.ShowOrUpdate(ctx, chatID, userID, text, backToMenuKB())
}

func (r *Router) showWeek(ctx context.Context, chatID, userID int64) {
	loc := r.cfg().Location()
	start := localDay(time.Now(), loc)
	end := start.AddDate(0, 0, 6)
	text := schedule.FormatRange(r.fetchEvents(ctx, loc), start, end, schedule.WeekTitle(start, end))
	r.anchors.ShowOrUpdate(ctx, chatID, userID, text, backToMenuKB())
}

func (r *Router) showMonth(ctx context.Context, chatID, userID int64) {
	loc := r.cfg().Location()
	today := localDay(time.Now(), loc)
	r.renderMonthWeek(ctx, chatID, userID, today.Year(), today.Month(), 0, loc)
}

// showMonthPage serves the "m|YYYY-MM|idx" pagination callbacks. Malformed
// data is ignored: stale buttons from old messages must not crash anything.
func (r *Router) showMonthPage(ctx context.Context, chatID, userID int64, ym, idxStr string) {
	t, err := time.Parse("2006-01", ym)
	if err != nil {
		return
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return
	}
	r.renderMonthWeek(ctx, chatID, userID, t.Year(), t.Month(), idx, r.cfg().Location())
}

func (r *Router) renderMonthWeek(ctx context.Context, chatID, userID int64, year int, month time.Month, idx int, loc *time.Location) {
	weeks := schedule.MonthWeeks(year, month, loc)
	if len(weeks) == 0 {
		return
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(weeks) {
		idx = len(weeks) - 1
	}
	w := weeks[idx]
	title := schedule.MonthTitle(year, month, idx, len(weeks))
	text := schedule.FormatRange(r.fetchEvents(ctx, loc), w.Start, w.End, title)

	ym := w.Start.Format("2006-01")
	r.anchors.ShowOrUpdate(ctx, chatID, userID, text, monthNavKB(ym, idx, len(weeks)))
}

func (r *Router) runTest(ctx context.Context, m *transport.Message) {
	if r.TestAnnounce == nil {
		return
	}
	r.TestAnnounce(ctx)
	_, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID},
		"OK: отправил тестовый анонс.", &transport.SendOptions{Silent: true})
	if err != nil {
		r.log.Debug("test ack failed", logx.Err(err))
	}
}

// fetchEvents pulls the plan, collapsing errors to an empty schedule so the
// views render their "no streams" rows instead of failing.
func (r *Router) fetchEvents(ctx context.Context, loc *time.Location) []schedule.Event {
	if r.tasks == nil {
		return nil
	}
	items, err := r.tasks.ListIncomplete(ctx)
	if err != nil {
		r.log.Warn("schedule fetch failed", logx.Err(err))
		return nil
	}
	return schedule.EventsFrom(items, loc)
}

// deleteTrigger removes the user's command/keyboard message after the view
// is rendered, keeping chats tidy. Failures (no admin rights in a group)
// are expected and ignored.
func (r *Router) deleteTrigger(ctx context.Context, m *transport.Message) {
	ref := transport.MessageRef{ChatID: m.ChatID, ThreadID: m.ThreadID, MessageID: m.ID}
	if err := r.adapter.Delete(ctx, ref); err != nil {
		r.log.Debug("trigger delete failed", logx.Err(err))
	}
}

func localDay(now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
}
