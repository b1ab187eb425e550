package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"herald/internal/transport"
	"herald/internal/twitch"
	"herald/pkg/logx"
)

type fakeLive struct {
	mu   sync.Mutex
	sess *twitch.Session
	err  error
}

func (f *fakeLive) set(sess *twitch.Session, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sess, f.err = sess, err
}

func (f *fakeLive) CurrentSession(context.Context) (*twitch.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess, f.err
}

type recSink struct {
	mu      sync.Mutex
	sends   []transport.MessageRef
	deletes []transport.MessageRef
	nextID  int
}

func (r *recSink) SendText(_ context.Context, to transport.ChatTarget, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ref := transport.MessageRef{ChatID: to.ChatID, MessageID: r.nextID}
	r.sends = append(r.sends, ref)
	return ref, nil
}

func (r *recSink) SendPhoto(_ context.Context, to transport.ChatTarget, _, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (r *recSink) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return nil
}

func (r *recSink) Delete(_ context.Context, ref transport.MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, ref)
	return nil
}

func (r *recSink) counts() (sends, deletes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends), len(r.deletes)
}

func newTestScheduler(live Liveness, sink transport.Sink) *Scheduler {
	return New(live, sink,
		func() []int64 { return []int64{10} },
		func() (string, any) { return "врывайся", nil },
		20*time.Millisecond,
		logx.Nop())
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNudgesReplacePrevious(t *testing.T) {
	live := &fakeLive{}
	live.set(&twitch.Session{ID: "s1"}, nil)
	sink := &recSink{}
	s := newTestScheduler(live, sink)
	defer s.Stop()

	s.StartFor(context.Background(), "s1")

	waitFor(t, func() bool { n, _ := sink.counts(); return n >= 2 }, "two nudges")
	_, deletes := sink.counts()
	if deletes < 1 {
		t.Fatalf("second nudge must delete the first, deletes = %d", deletes)
	}

	sink.mu.Lock()
	deleted := sink.deletes[0]
	first := sink.sends[0]
	sink.mu.Unlock()
	if deleted != first {
		t.Fatalf("deleted %+v, want first nudge %+v", deleted, first)
	}
}

func TestStopsWhenStreamEnds(t *testing.T) {
	live := &fakeLive{}
	live.set(&twitch.Session{ID: "s1"}, nil)
	sink := &recSink{}
	s := newTestScheduler(live, sink)

	s.StartFor(context.Background(), "s1")
	waitFor(t, func() bool { n, _ := sink.counts(); return n >= 1 }, "first nudge")

	live.set(nil, nil)
	waitFor(t, func() bool { _, ok := s.Active(); return !ok }, "loop exit")
}

func TestStopsWhenSessionChanges(t *testing.T) {
	live := &fakeLive{}
	live.set(&twitch.Session{ID: "s1"}, nil)
	s := newTestScheduler(live, &recSink{})

	s.StartFor(context.Background(), "s1")
	live.set(&twitch.Session{ID: "s2"}, nil)
	waitFor(t, func() bool { _, ok := s.Active(); return !ok }, "loop exit on id change")
}

func TestProbeErrorKeepsLoopAlive(t *testing.T) {
	live := &fakeLive{}
	live.set(nil, errors.New("api down"))
	sink := &recSink{}
	s := newTestScheduler(live, sink)
	defer s.Stop()

	s.StartFor(context.Background(), "s1")
	time.Sleep(80 * time.Millisecond)

	if _, ok := s.Active(); !ok {
		t.Fatalf("probe errors must not stop the loop")
	}
	if n, _ := sink.counts(); n != 0 {
		t.Fatalf("no nudges while the probe fails, got %d", n)
	}

	// Recovery: probes succeed again, nudges resume.
	live.set(&twitch.Session{ID: "s1"}, nil)
	waitFor(t, func() bool { n, _ := sink.counts(); return n >= 1 }, "nudge after recovery")
}

func TestStartForSupersedes(t *testing.T) {
	live := &fakeLive{}
	live.set(&twitch.Session{ID: "s2"}, nil)
	sink := &recSink{}
	s := newTestScheduler(live, sink)
	defer s.Stop()

	s.StartFor(context.Background(), "s1")
	s.StartFor(context.Background(), "s2")

	if id, ok := s.Active(); !ok || id != "s2" {
		t.Fatalf("active = (%q, %v), want s2", id, ok)
	}
	waitFor(t, func() bool { n, _ := sink.counts(); return n >= 1 }, "nudge from new loop")
	if id, ok := s.Active(); !ok || id != "s2" {
		t.Fatalf("old loop must not clobber new state: (%q, %v)", id, ok)
	}
}

func TestStop(t *testing.T) {
	live := &fakeLive{}
	live.set(&twitch.Session{ID: "s1"}, nil)
	s := newTestScheduler(live, &recSink{})

	s.StartFor(context.Background(), "s1")
	s.Stop()
	if _, ok := s.Active(); ok {
		t.Fatalf("Stop must clear the active loop")
	}
}
