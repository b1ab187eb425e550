package digest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"herald/internal/gtasks"
	"herald/internal/notifier"
	"herald/pkg/logx"
)

type fakeProvider struct {
	mu    sync.Mutex
	items []gtasks.Item
	err   error
	calls int
}

func (f *fakeProvider) ListIncomplete(context.Context) ([]gtasks.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.items, f.err
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []notifier.Message
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, _ []int64, msg notifier.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func newTestScheduler(prov Provider, disp Broadcaster, at time.Time) *Scheduler {
	s := New(Config{
		Times:    []string{"10:00"},
		ImageURL: "https://img.example/d.jpg",
		Targets:  []int64{1},
	}, prov, disp, func() any { return nil }, time.UTC, logx.Nop())
	s.now = func() time.Time { return at }
	return s
}

func itemsForDay(day string) []gtasks.Item {
	return []gtasks.Item{{Title: "18:00 стрим", Due: day + "T00:00:00.000Z"}}
}

func TestFiresOnceAtConfiguredTime(t *testing.T) {
	prov := &fakeProvider{items: itemsForDay("2026-09-01")}
	disp := &fakeBroadcaster{}
	at := time.Date(2026, 9, 1, 10, 0, 5, 0, time.UTC)
	s := newTestScheduler(prov, disp, at)

	// Several ticks land inside the same minute; only the first sends.
	for i := 0; i < 3; i++ {
		s.tick(context.Background())
	}
	if n := disp.count(); n != 1 {
		t.Fatalf("expected exactly one digest, got %d", n)
	}
	disp.mu.Lock()
	msg := disp.msgs[0]
	disp.mu.Unlock()
	if msg.PhotoURL != "https://img.example/d.jpg" {
		t.Fatalf("digest must carry the configured image: %+v", msg)
	}
}

func TestDoesNotFireOffSchedule(t *testing.T) {
	prov := &fakeProvider{items: itemsForDay("2026-09-01")}
	disp := &fakeBroadcaster{}
	at := time.Date(2026, 9, 1, 10, 1, 0, 0, time.UTC)
	s := newTestScheduler(prov, disp, at)

	s.tick(context.Background())
	if n := disp.count(); n != 0 {
		t.Fatalf("no digest outside configured times, got %d", n)
	}
	if prov.calls != 0 {
		t.Fatalf("no fetch outside configured times, got %d", prov.calls)
	}
}

func TestEmptyDayConsumesSlotSilently(t *testing.T) {
	prov := &fakeProvider{} // nothing planned
	disp := &fakeBroadcaster{}
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	s := newTestScheduler(prov, disp, at)

	s.tick(context.Background())
	s.tick(context.Background())

	if n := disp.count(); n != 0 {
		t.Fatalf("empty day must stay silent, got %d", n)
	}
	if prov.calls != 1 {
		t.Fatalf("empty day must consume the slot after one fetch, calls = %d", prov.calls)
	}
}

func TestFetchErrorRetriesWithinMinute(t *testing.T) {
	prov := &fakeProvider{err: errors.New("api down"), items: itemsForDay("2026-09-01")}
	disp := &fakeBroadcaster{}
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	s := newTestScheduler(prov, disp, at)

	s.tick(context.Background())
	if n := disp.count(); n != 0 {
		t.Fatalf("failed fetch must not send, got %d", n)
	}

	// Provider recovers inside the same minute: the slot still fires.
	prov.mu.Lock()
	prov.err = nil
	prov.mu.Unlock()
	s.tick(context.Background())
	if n := disp.count(); n != 1 {
		t.Fatalf("expected digest after recovery, got %d", n)
	}
}

type blockingProvider struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (p *blockingProvider) ListIncomplete(context.Context) ([]gtasks.Item, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	p.entered <- struct{}{}
	<-p.release
	return itemsForDay("2026-09-01"), nil
}

func TestOverlappingTicksSendOneDigest(t *testing.T) {
	prov := &blockingProvider{entered: make(chan struct{}, 2), release: make(chan struct{})}
	disp := &fakeBroadcaster{}
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	s := newTestScheduler(prov, disp, at)

	done := make(chan struct{})
	go func() {
		s.tick(context.Background())
		close(done)
	}()
	<-prov.entered // first tick is inside the fetch

	// A second tick arrives while the first is mid-fetch, before the fire
	// key is marked. It must drop out instead of refetching and sending
	// the same digest twice.
	s.tick(context.Background())

	close(prov.release)
	<-done

	if n := disp.count(); n != 1 {
		t.Fatalf("overlapping ticks must send one digest, got %d", n)
	}
	prov.mu.Lock()
	calls := prov.calls
	prov.mu.Unlock()
	if calls != 1 {
		t.Fatalf("second tick must not refetch, calls = %d", calls)
	}
}

func TestNewDayResetsFiredSlots(t *testing.T) {
	prov := &fakeProvider{items: itemsForDay("2026-09-01")}
	disp := &fakeBroadcaster{}
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	s := newTestScheduler(prov, disp, at)

	s.tick(context.Background())
	if n := disp.count(); n != 1 {
		t.Fatalf("day 1: expected 1 digest, got %d", n)
	}

	prov.mu.Lock()
	prov.items = itemsForDay("2026-09-02")
	prov.mu.Unlock()
	s.now = func() time.Time { return time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC) }

	s.tick(context.Background())
	if n := disp.count(); n != 2 {
		t.Fatalf("day 2: expected 2 digests total, got %d", n)
	}
}
