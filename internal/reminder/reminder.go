// Package reminder posts recurring "still live" nudges for the duration of
// one broadcast session.
package reminder

import (
	"context"
	"sync"
	"time"

	"herald/internal/transport"
	"herald/internal/twitch"
	"herald/pkg/logx"
)

// Liveness probes whether the session is still running.
type Liveness interface {
	CurrentSession(ctx context.Context) (*twitch.Session, error)
}

// Content supplies the nudge text and markup at send time, so links follow
// config reloads.
type Content func() (text string, markup any)

// Scheduler runs at most one reminder loop. StartFor for a new session
// cancels the previous loop before the new one takes over.
//
// Each chat keeps only the latest nudge: the previous one is deleted before
// the next is posted.
type Scheduler struct {
	live     Liveness
	sink     transport.Sink
	targets  func() []int64
	content  Content
	interval time.Duration
	log      logx.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	session string
	lastMsg map[int64]transport.MessageRef
}

func New(live Liveness, sink transport.Sink, targets func() []int64, content Content, interval time.Duration, log logx.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		live:     live,
		sink:     sink,
		targets:  targets,
		content:  content,
		interval: interval,
		log:      log,
		lastMsg:  make(map[int64]transport.MessageRef),
	}
}

// StartFor begins the reminder loop for sessionID. A loop already running
// for another session is cancelled, not left to wind down on its own.
func (s *Scheduler) StartFor(ctx context.Context, sessionID string) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.session = sessionID
	s.mu.Unlock()

	s.log.Info("reminder loop started", logx.String("session_id", sessionID))
	go s.loop(loopCtx, sessionID)
}

// Stop cancels any running loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Active returns the session the loop currently serves.
func (s *Scheduler) Active() (sessionID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, sessionID string) {
	defer s.finish(sessionID)

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		sess, err := s.live.CurrentSession(ctx)
		if err != nil {
			// A probe failure says nothing about the stream; skip this
			// nudge and check again next tick.
			s.log.Warn("liveness probe failed", logx.Err(err))
			continue
		}
		if sess == nil || sess.ID != sessionID {
			s.log.Info("stream ended or changed, stopping reminders",
				logx.String("session_id", sessionID))
			return
		}

		s.nudge(ctx)
	}
}

// nudge posts the reminder to every target chat, replacing the previous one.
func (s *Scheduler) nudge(ctx context.Context) {
	text, markup := s.content()
	opt := &transport.SendOptions{ReplyMarkupAdapter: markup}

	for _, chatID := range s.targets() {
		s.mu.Lock()
		prev, hasPrev := s.lastMsg[chatID]
		s.mu.Unlock()
		if hasPrev {
			if err := s.sink.Delete(ctx, prev); err != nil {
				s.log.Debug("previous nudge delete failed",
					logx.Int64("chat_id", chatID),
					logx.Err(err))
			}
		}

		ref, err := s.sink.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt)
		if err != nil {
			s.log.Warn("nudge send failed",
				logx.Int64("chat_id", chatID),
				logx.Err(err))
			continue
		}
		s.mu.Lock()
		s.lastMsg[chatID] = ref
		s.mu.Unlock()
	}
}

// finish clears loop state, but only when this loop is still the current
// one: a superseding StartFor must not lose its own bookkeeping.
func (s *Scheduler) finish(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != sessionID {
		return
	}
	s.session = ""
	s.cancel = nil
	s.lastMsg = make(map[int64]transport.MessageRef)
}
