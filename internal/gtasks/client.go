// Package gtasks fetches the stream plan from a Google Tasks list. Each
// incomplete task is one planned stream: the due date carries the day and the
// title carries the time of day and description.
package gtasks

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

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	defaultAPIURL   = "https://tasks.googleapis.com/tasks/v1"

	maxResultsPerPage = 100
)

type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	ListID       string

	// TokenURL/APIURL override the Google endpoints (tests).
	TokenURL string
	APIURL   string
}

// Item is one incomplete task from the list. Due is the raw RFC 3339 value
// from the API; Google Tasks only stores the date part.
type Item struct {
	Title string `json:"title"`
	Due   string `json:"due"`
}

type Client struct {
	cfg  Config
	log  logx.Logger
	http *retryablehttp.Client
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.HTTPClient.Timeout = 20 * time.Second
	hc.Logger = nil
	return &Client{cfg: cfg, log: log, http: hc}
}

// ListIncomplete returns every incomplete task in the configured list,
// following nextPageToken pagination.
func (c *Client) ListIncomplete(ctx context.Context) ([]Item, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var items []Item
	pageToken := ""
	for {
		q := url.Values{
			"showCompleted": {"false"},
			"maxResults":    {fmt.Sprint(maxResultsPerPage)},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		u := c.cfg.APIURL + "/lists/" + url.PathEscape(c.cfg.ListID) + "/tasks?" + q.Encode()

		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tasks list: %w", err)
		}
		var page struct {
			Items         []Item `json:"items"`
			NextPageToken string `json:"nextPageToken"`
		}
		if resp.StatusCode/100 != 2 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("tasks list: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("tasks list decode: %w", err)
		}

		items = append(items, page.Items...)
		if page.NextPageToken == "" {
			return items, nil
		}
		pageToken = page.NextPageToken
	}
}

// accessToken exchanges the long-lived refresh token for a short-lived
// access token. The digest fires a handful of times a day, so the token is
// fetched per ListIncomplete call rather than cached.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {c.cfg.RefreshToken},
		"grant_type":    {"refresh_token"},
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("tasks token exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tasks token exchange: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("tasks token decode: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("tasks token exchange: empty access_token")
	}
	return out.AccessToken, nil
}
