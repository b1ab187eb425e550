// Package youtube looks up the live broadcast on a channel to enrich stream
// announcements with a watch link and a thumbnail.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"herald/pkg/logx"
)

const defaultAPIURL = "https://www.googleapis.com/youtube/v3"

// thumbnailOrder lists thumbnail variants from best to worst.
var thumbnailOrder = []string{"maxres", "standard", "high", "medium", "default"}

type Config struct {
	APIKey    string
	ChannelID string

	// APIURL overrides the Data API endpoint (tests).
	APIURL string
}

// LiveItem is a currently running broadcast on the configured channel.
type LiveItem struct {
	VideoID  string
	Title    string
	ThumbURL string
}

func (it *LiveItem) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + it.VideoID
}

type Client struct {
	cfg  Config
	log  logx.Logger
	http *retryablehttp.Client

	// sleep is swappable in tests so retry delays don't slow the suite.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.HTTPClient.Timeout = 20 * time.Second
	hc.Logger = nil
	return &Client{cfg: cfg, log: log, http: hc, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FindLive polls the Data API up to attempts times, waiting delay between
// tries, and returns the first live broadcast found. YouTube indexes a new
// broadcast with a lag, hence the retries. Returns nil when nothing was
// found; lookup failures are logged and treated as "not found".
func (c *Client) FindLive(ctx context.Context, attempts int, delay time.Duration) *LiveItem {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return nil
			}
		}
		it, err := c.SearchLive(ctx)
		if err != nil {
			c.log.Warn("live lookup failed",
				logx.Int("attempt", i+1),
				logx.Err(err))
			continue
		}
		if it != nil {
			return it
		}
		c.log.Debug("no live broadcast yet", logx.Int("attempt", i+1))
	}
	return nil
}

// SearchLive returns the channel's current live broadcast, nil when none.
func (c *Client) SearchLive(ctx context.Context) (*LiveItem, error) {
	q := url.Values{
		"part":       {"snippet"},
		"channelId":  {c.cfg.ChannelID},
		"eventType":  {"live"},
		"type":       {"video"},
		"order":      {"date"},
		"maxResults": {"1"},
		"key":        {c.cfg.APIKey},
	}
	var out struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, c.cfg.APIURL+"/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 || out.Items[0].ID.VideoID == "" {
		return nil, nil
	}
	it := &LiveItem{
		VideoID: out.Items[0].ID.VideoID,
		Title:   out.Items[0].Snippet.Title,
	}

	// Thumbnail is best-effort; the announcement falls back to the
	// configured banner when the videos call fails.
	thumb, err := c.bestThumbnail(ctx, it.VideoID)
	if err != nil {
		c.log.Debug("thumbnail lookup failed", logx.String("video_id", it.VideoID), logx.Err(err))
	}
	it.ThumbURL = thumb
	return it, nil
}

// bestThumbnail picks the highest-resolution thumbnail the API offers.
func (c *Client) bestThumbnail(ctx context.Context, videoID string) (string, error) {
	q := url.Values{
		"part": {"snippet"},
		"id":   {videoID},
		"key":  {c.cfg.APIKey},
	}
	var out struct {
		Items []struct {
			Snippet struct {
				Thumbnails map[string]struct {
					URL string `json:"url"`
				} `json:"thumbnails"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, c.cfg.APIURL+"/videos?"+q.Encode(), &out); err != nil {
		return "", err
	}
	if len(out.Items) == 0 {
		return "", nil
	}
	thumbs := out.Items[0].Snippet.Thumbnails
	for _, name := range thumbnailOrder {
		if t, ok := thumbs[name]; ok && t.URL != "" {
			return t.URL, nil
		}
	}
	return "", nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("youtube api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("youtube api: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("youtube api decode: %w", err)
	}
	return nil
}
