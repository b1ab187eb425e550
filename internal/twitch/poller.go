package twitch

import (
	"context"
	"sync"
	"time"

	"herald/pkg/logx"
)

// StatusSource reports the current live session, nil when offline.
type StatusSource interface {
	CurrentSession(ctx context.Context) (*Session, error)
}

// Poller wraps a StatusSource with cadence and new-session detection.
//
// The last announced session id is kept until a different id is observed, so
// an offline gap between polls does not re-announce the same broadcast.
type Poller struct {
	src      StatusSource
	interval time.Duration
	log      logx.Logger

	mu       sync.Mutex
	lastID   string
	lastPoll time.Time
}

func NewPoller(src StatusSource, interval time.Duration, log logx.Logger) *Poller {
	return &Poller{src: src, interval: interval, log: log}
}

// Due reports whether enough time has passed since the last completed poll.
// The driver ticks faster than the poll interval; Due gates the actual calls.
func (p *Poller) Due(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastPoll) >= p.interval
}

// PollOnce fetches the current session and returns it only when it is a new
// broadcast. It returns (nil, nil) when the channel is offline or when the
// observed session was already reported.
func (p *Poller) PollOnce(ctx context.Context) (*Session, error) {
	sess, err := p.src.CurrentSession(ctx)
	if err != nil {
		// Transient provider errors do not advance lastPoll, so the next
		// driver tick retries instead of waiting out a full interval.
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPoll = time.Now()

	if sess == nil {
		return nil, nil
	}
	if sess.ID == p.lastID {
		return nil, nil
	}
	p.lastID = sess.ID
	return sess, nil
}

// LastSessionID returns the most recently reported session id, empty when no
// broadcast has been seen yet.
func (p *Poller) LastSessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastID
}
