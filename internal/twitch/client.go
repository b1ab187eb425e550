package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"herald/pkg/logx"
)

const (
	defaultTokenURL = "https://id.twitch.tv/oauth2/token"
	defaultAPIURL   = "https://api.twitch.tv/helix"

	// tokenMargin is the remaining lifetime below which a cached token is
	// considered stale and refreshed before use.
	tokenMargin = 60 * time.Second

	defaultTokenTTL = 3600 * time.Second
)

type Config struct {
	ClientID     string
	ClientSecret string
	Username     string

	// TokenURL/APIURL override the Twitch endpoints (tests).
	TokenURL string
	APIURL   string
}

// Session is one continuous live broadcast as reported by Twitch.
type Session struct {
	ID    string
	Title string
}

// Client talks to the Twitch Helix API using an app access token obtained
// via the client-credentials flow. The token is cached in memory and
// refreshed on demand; a 401/403 from Helix invalidates it eagerly and the
// failing call is retried once with a fresh token.
type Client struct {
	cfg  Config
	log  logx.Logger
	http *retryablehttp.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
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
	hc.Logger = nil // suppress retryablehttp's default logging
	return &Client{cfg: cfg, log: log, http: hc}
}

// accessToken returns the cached token while more than tokenMargin of its
// lifetime remains, refreshing it otherwise.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Until(c.tokenExp) > tokenMargin {
		tk := c.token
		c.mu.Unlock()
		return tk, nil
	}
	c.mu.Unlock()
	return c.refreshToken(ctx)
}

func (c *Client) refreshToken(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("twitch token exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("twitch token exchange: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("twitch token decode: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("twitch token exchange: empty access_token")
	}
	ttl := defaultTokenTTL
	if out.ExpiresIn > 0 {
		ttl = time.Duration(out.ExpiresIn) * time.Second
	}

	c.mu.Lock()
	c.token = out.AccessToken
	c.tokenExp = time.Now().Add(ttl)
	c.mu.Unlock()
	return out.AccessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExp = time.Time{}
	c.mu.Unlock()
}

// CurrentSession returns the live session for the configured channel, or
// (nil, nil) when the channel is offline. An authorization failure triggers
// one token refresh and a single retry before the error surfaces.
func (c *Client) CurrentSession(ctx context.Context) (*Session, error) {
	tk, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	sess, status, err := c.fetchStream(ctx, tk)
	if err == nil && !isAuthStatus(status) {
		return sess, nil
	}
	if !isAuthStatus(status) {
		return nil, err
	}

	// Expired/invalid token: refresh once and retry.
	c.invalidateToken()
	tk, err = c.refreshToken(ctx)
	if err != nil {
		return nil, err
	}
	sess, status, err = c.fetchStream(ctx, tk)
	if err != nil {
		return nil, err
	}
	if isAuthStatus(status) {
		return nil, fmt.Errorf("twitch streams: http %d after token refresh", status)
	}
	return sess, nil
}

func (c *Client) fetchStream(ctx context.Context, token string) (*Session, int, error) {
	u := c.cfg.APIURL + "/streams?user_login=" + url.QueryEscape(c.cfg.Username)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Client-ID", c.cfg.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("twitch streams: %w", err)
	}
	defer resp.Body.Close()

	if isAuthStatus(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("twitch streams: http %d", resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, fmt.Errorf("twitch streams: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Data []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("twitch streams decode: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, resp.StatusCode, nil
	}
	return &Session{ID: out.Data[0].ID, Title: out.Data[0].Title}, resp.StatusCode, nil
}

func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
