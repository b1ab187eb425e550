// Package anchor maintains one reusable bot message per (chat, user) pair.
// Menu and schedule views edit that message in place instead of piling up
// new posts in the chat.
package anchor

import (
	"context"
	"sync"
	"time"

	"herald/internal/transport"
	"herald/pkg/logx"
)

// Key identifies one anchor: a user's working message inside one chat.
type Key struct {
	ChatID int64
	UserID int64
}

type record struct {
	ref   transport.MessageRef
	timer *time.Timer
	// gen identifies the arming of the current TTL timer. Bumped on every
	// touch, so a timer that already fired and is waiting on the mutex can
	// be told apart from the rearmed one.
	gen uint64
}

// Manager owns the anchor map. Operations on the same key are serialized;
// with concurrent updates the last completed write wins.
type Manager struct {
	sink transport.Sink
	ttl  time.Duration
	log  logx.Logger

	// mu is held across sink calls so that edit-vs-resend decisions for the
	// same key cannot interleave.
	mu      sync.Mutex
	anchors map[Key]*record
	gen     uint64 // monotonic, never reused across records
}

func New(sink transport.Sink, ttl time.Duration, log logx.Logger) *Manager {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Manager{
		sink:    sink,
		ttl:     ttl,
		log:     log,
		anchors: make(map[Key]*record),
	}
}

// ShowOrUpdate renders text+markup into the user's anchor message: the
// existing message is edited, a missing or stale one is replaced by a fresh
// silent message. Every touch rearms the idle TTL.
func (m *Manager) ShowOrUpdate(ctx context.Context, chatID, userID int64, text string, markup any) {
	key := Key{ChatID: chatID, UserID: userID}
	opt := &transport.SendOptions{
		ParseMode:          "HTML",
		Silent:             true,
		ReplyMarkupAdapter: markup,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.anchors[key]; ok {
		if err := m.sink.EditText(ctx, rec.ref, text, opt); err == nil {
			m.arm(key, rec)
			return
		}
		// Edit failed: the message was deleted or is too old. Drop the
		// record and fall through to a fresh send.
		rec.timer.Stop()
		delete(m.anchors, key)
	}

	ref, err := m.sink.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt)
	if err != nil {
		m.log.Warn("anchor send failed",
			logx.Int64("chat_id", chatID),
			logx.Int64("user_id", userID),
			logx.Err(err))
		return
	}
	rec := &record{ref: ref}
	m.arm(key, rec)
	m.anchors[key] = rec
}

// arm gives rec a fresh generation and TTL timer. Resetting the old timer
// would leave an already-fired callback carrying a stale closure, so each
// touch stops it and arms a new one. Caller holds m.mu.
func (m *Manager) arm(key Key, rec *record) {
	if rec.timer != nil {
		rec.timer.Stop()
	}
	m.gen++
	gen := m.gen
	rec.gen = gen
	rec.timer = time.AfterFunc(m.ttl, func() { m.expire(key, gen) })
}

// Close deletes the user's anchor, if any. Used by the explicit close button.
func (m *Manager) Close(ctx context.Context, chatID, userID int64) {
	key := Key{ChatID: chatID, UserID: userID}

	m.mu.Lock()
	rec, ok := m.anchors[key]
	if ok {
		rec.timer.Stop()
		delete(m.anchors, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := m.sink.Delete(ctx, rec.ref); err != nil {
		m.log.Debug("anchor delete failed",
			logx.Int64("chat_id", chatID),
			logx.Int64("user_id", userID),
			logx.Err(err))
	}
}

// expire removes an idle anchor after the TTL. The generation check guards
// against a timer that fired just before a touch or a replacement rearmed
// the record: only the timer of the current generation may delete.
func (m *Manager) expire(key Key, gen uint64) {
	m.mu.Lock()
	rec, ok := m.anchors[key]
	if !ok || rec.gen != gen {
		m.mu.Unlock()
		return
	}
	ref := rec.ref
	delete(m.anchors, key)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.sink.Delete(ctx, ref); err != nil {
		m.log.Debug("anchor ttl delete failed",
			logx.Int64("chat_id", key.ChatID),
			logx.Err(err))
	}
}

// Shutdown stops all TTL timers without touching the messages.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range m.anchors {
		rec.timer.Stop()
		delete(m.anchors, k)
	}
}
