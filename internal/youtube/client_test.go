package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"herald/pkg/logx"
)

func newTestServer(t *testing.T, search, videos http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", search)
	mux.HandleFunc("/videos", videos)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(Config{APIKey: "key", ChannelID: "chan", APIURL: srv.URL}, logx.Nop())
	c.http.RetryMax = 0
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func searchLive(videoID, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"items":[{"id":{"videoId":%q},"snippet":{"title":%q}}]}`, videoID, title)
	}
}

func searchEmpty(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, `{"items":[]}`)
}

func videosWithThumbs(thumbs string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"items":[{"snippet":{"thumbnails":%s}}]}`, thumbs)
	}
}

func TestSearchLivePicksBestThumbnail(t *testing.T) {
	thumbs := `{"default":{"url":"u-default"},"high":{"url":"u-high"},"maxres":{"url":"u-maxres"}}`
	c := newTestServer(t, searchLive("vid1", "эфир"), videosWithThumbs(thumbs))

	it, err := c.SearchLive(context.Background())
	if err != nil {
		t.Fatalf("SearchLive: %v", err)
	}
	if it == nil || it.VideoID != "vid1" || it.Title != "эфир" {
		t.Fatalf("unexpected item: %+v", it)
	}
	if it.ThumbURL != "u-maxres" {
		t.Fatalf("expected maxres thumbnail, got %q", it.ThumbURL)
	}
	if it.WatchURL() != "https://www.youtube.com/watch?v=vid1" {
		t.Fatalf("watch url: %q", it.WatchURL())
	}
}

func TestSearchLiveThumbnailFallbackOrder(t *testing.T) {
	thumbs := `{"default":{"url":"u-default"},"medium":{"url":"u-medium"}}`
	c := newTestServer(t, searchLive("vid2", "t"), videosWithThumbs(thumbs))

	it, err := c.SearchLive(context.Background())
	if err != nil {
		t.Fatalf("SearchLive: %v", err)
	}
	if it.ThumbURL != "u-medium" {
		t.Fatalf("expected medium thumbnail, got %q", it.ThumbURL)
	}
}

func TestSearchLiveNone(t *testing.T) {
	c := newTestServer(t, searchEmpty, videosWithThumbs("{}"))

	it, err := c.SearchLive(context.Background())
	if err != nil {
		t.Fatalf("SearchLive: %v", err)
	}
	if it != nil {
		t.Fatalf("expected nil when no live broadcast, got %+v", it)
	}
}

func TestSearchLiveThumbnailErrorIsNotFatal(t *testing.T) {
	videos := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	c := newTestServer(t, searchLive("vid3", "t"), videos)

	it, err := c.SearchLive(context.Background())
	if err != nil {
		t.Fatalf("SearchLive: %v", err)
	}
	if it == nil || it.VideoID != "vid3" || it.ThumbURL != "" {
		t.Fatalf("expected item without thumbnail, got %+v", it)
	}
}

func TestFindLiveRetriesUntilFound(t *testing.T) {
	var calls int32
	search := func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			searchEmpty(w, r)
			return
		}
		searchLive("vid4", "нашёлся")(w, r)
	}
	c := newTestServer(t, search, videosWithThumbs("{}"))

	it := c.FindLive(context.Background(), 3, time.Millisecond)
	if it == nil || it.VideoID != "vid4" {
		t.Fatalf("expected item on third attempt, got %+v", it)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 search calls, got %d", n)
	}
}

func TestFindLiveGivesUp(t *testing.T) {
	var calls int32
	search := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		searchEmpty(w, r)
	}
	c := newTestServer(t, search, videosWithThumbs("{}"))

	if it := c.FindLive(context.Background(), 3, time.Millisecond); it != nil {
		t.Fatalf("expected nil after exhausted attempts, got %+v", it)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestFindLiveStopsOnCancel(t *testing.T) {
	c := newTestServer(t, searchEmpty, videosWithThumbs("{}"))
	c.sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }

	if it := c.FindLive(context.Background(), 5, time.Hour); it != nil {
		t.Fatalf("expected nil on cancelled sleep, got %+v", it)
	}
}
