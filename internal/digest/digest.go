// Package digest posts the "streams today" summary at fixed local times.
package digest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"herald/internal/gtasks"
	"herald/internal/notifier"
	"herald/internal/schedule"
	"herald/pkg/logx"
)

// tickSpec drives the wall-clock comparison. Several ticks land inside each
// minute so one slow tick does not skip a fire time.
const tickSpec = "@every 20s"

// Provider fetches the plan for today's digest.
type Provider interface {
	ListIncomplete(ctx context.Context) ([]gtasks.Item, error)
}

// Broadcaster delivers the rendered digest.
type Broadcaster interface {
	Broadcast(ctx context.Context, targets []int64, msg notifier.Message)
}

type Config struct {
	// Times are local wall-clock "HH:MM" fire times.
	Times []string
	// ImageURL decorates the digest when set.
	ImageURL string
	Targets  []int64
}

// Scheduler fires the digest at most once per configured time per local day.
// Fired (day, time) pairs are tracked in memory only: a restart may repeat a
// digest, which is acceptable for this workload.
type Scheduler struct {
	cfg    Config
	prov   Provider
	disp   Broadcaster
	markup func() any
	loc    *time.Location
	log    logx.Logger

	cron *cron.Cron
	now  func() time.Time // test hook

	// tickMu keeps at most one tick in flight: cron runs every invocation
	// in its own goroutine, and an overlapping tick would pass the fired
	// check before a slow fetch+broadcast marks the key.
	tickMu sync.Mutex

	mu    sync.Mutex
	fired map[string]struct{}
}

func New(cfg Config, prov Provider, disp Broadcaster, markup func() any, loc *time.Location, log logx.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		prov:   prov,
		disp:   disp,
		markup: markup,
		loc:    loc,
		log:    log,
		now:    time.Now,
		fired:  make(map[string]struct{}),
	}
}

// Start launches the cron-driven tick. No-op when no provider is configured.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.prov == nil {
		s.log.Info("digest disabled, no task provider configured")
		return nil
	}
	s.cron = cron.New(cron.WithLocation(s.loc))
	_, err := s.cron.AddFunc(tickSpec, func() { s.tick(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("digest scheduler started",
		logx.String("times", strings.Join(s.cfg.Times, ",")),
		logx.String("tz", s.loc.String()))
	return nil
}

// Stop halts the tick and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// tick compares the local wall clock to the configured fire times and posts
// the digest for any time that matches and has not fired today. A tick that
// arrives while the previous one is still running is dropped, not queued.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		return
	}
	defer s.tickMu.Unlock()

	now := s.now().In(s.loc)
	today := now.Format("2006-01-02")
	hhmm := now.Format("15:04")

	s.pruneFired(today)

	for _, t := range s.cfg.Times {
		if t != hhmm {
			continue
		}
		key := today + "|" + t
		if s.alreadyFired(key) {
			continue
		}

		items, err := s.prov.ListIncomplete(ctx)
		if err != nil {
			// Not marked fired: the fetch is retried on the next tick. If
			// the provider stays down past the end of the minute the slot
			// is silently lost for the day.
			s.log.Warn("digest fetch failed", logx.String("at", t), logx.Err(err))
			continue
		}

		events := schedule.EventsFrom(items, s.loc)
		text := schedule.FormatToday(events, now)
		if text == "" {
			// An empty day still consumes the slot, otherwise every
			// remaining tick of this minute would re-fetch the list.
			s.markFired(key)
			s.log.Debug("no streams today, digest skipped", logx.String("at", t))
			continue
		}

		s.disp.Broadcast(ctx, s.cfg.Targets, notifier.Message{
			Text:     text,
			PhotoURL: s.cfg.ImageURL,
			Markup:   s.markup(),
		})
		s.markFired(key)
		s.log.Info("digest sent", logx.String("at", t), logx.Int("targets", len(s.cfg.Targets)))
	}
}

func (s *Scheduler) alreadyFired(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fired[key]
	return ok
}

func (s *Scheduler) markFired(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired[key] = struct{}{}
}

// pruneFired drops keys from previous days so the set stays bounded.
func (s *Scheduler) pruneFired(today string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.fired {
		if !strings.HasPrefix(k, today+"|") {
			delete(s.fired, k)
		}
	}
}
