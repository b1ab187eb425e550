package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Timezone is the IANA zone used for digest times and schedule views,
	// e.g. "Europe/Kyiv". Defaults to UTC.
	Timezone string `json:"timezone,omitempty"`

	Twitch  TwitchConfig  `json:"twitch"`
	YouTube YouTubeConfig `json:"youtube,omitempty"`
	Tasks   TasksConfig   `json:"tasks,omitempty"`

	Announce AnnounceConfig `json:"announce,omitempty"`
	Reminder ReminderConfig `json:"reminder,omitempty"`
	Digest   DigestConfig   `json:"digest,omitempty"`
	Anchor   AnchorConfig   `json:"anchor,omitempty"`
	Social   SocialConfig   `json:"social,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// Destination sets per workflow. Reminder and digest fall back to the
	// announce list when empty; the sets may overlap freely.
	AnnounceChatIDs []int64 `json:"announce_chat_ids"`
	ReminderChatIDs []int64 `json:"reminder_chat_ids,omitempty"`
	DigestChatIDs   []int64 `json:"digest_chat_ids,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type TwitchConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	// PollInterval is a Go duration string; minimum cadence between status
	// polls (default "60s").
	PollInterval string `json:"poll_interval,omitempty"`
}

// Ready reports whether the status provider is fully configured.
// When false the live monitor is disabled at startup.
func (c TwitchConfig) Ready() bool {
	return strings.TrimSpace(c.ClientID) != "" &&
		strings.TrimSpace(c.ClientSecret) != "" &&
		strings.TrimSpace(c.Username) != ""
}

type YouTubeConfig struct {
	APIKey    string `json:"api_key"`
	ChannelID string `json:"channel_id"`
}

func (c YouTubeConfig) Ready() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.ChannelID) != ""
}

type TasksConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	ListID       string `json:"list_id"`
}

func (c TasksConfig) Ready() bool {
	return strings.TrimSpace(c.ClientID) != "" &&
		strings.TrimSpace(c.ClientSecret) != "" &&
		strings.TrimSpace(c.RefreshToken) != "" &&
		strings.TrimSpace(c.ListID) != ""
}

type AnnounceConfig struct {
	// ImageURL is the fallback banner when no live enrichment is found.
	ImageURL string `json:"image_url,omitempty"`
	// Hashtags is the trailing tag line of announcements, omitted when empty.
	Hashtags string `json:"hashtags,omitempty"`
	// Enrichment retry knobs.
	LookupAttempts int    `json:"lookup_attempts,omitempty"` // default 3
	LookupDelay    string `json:"lookup_delay,omitempty"`    // default "10s"
}

type ReminderConfig struct {
	// Interval between "still live" nudges (default "60m").
	Interval string `json:"interval,omitempty"`
}

type DigestConfig struct {
	// Times are local wall-clock "HH:MM" strings (default ["10:00","14:00"]).
	Times    []string `json:"times,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

type AnchorConfig struct {
	// TTL until an untouched menu message is deleted (default "15m").
	TTL string `json:"ttl,omitempty"`
}

// SocialConfig holds the external links shown in menus and under
// announcements. Empty fields hide the corresponding button.
type SocialConfig struct {
	YouTube   string `json:"youtube,omitempty"`
	Twitch    string `json:"twitch,omitempty"`
	TGGroup   string `json:"tg_group,omitempty"`
	TGChannel string `json:"tg_channel,omitempty"`
	TikTok    string `json:"tiktok,omitempty"`
	BuyUC     string `json:"buy_uc,omitempty"`
	JoinClan  string `json:"join_clan,omitempty"`
	BookingDM string `json:"booking_dm,omitempty"`
}

// Validate rejects configs that cannot be run at all. Per-provider
// credentials are intentionally NOT required here: a missing provider
// disables its feature with a log instead of failing startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if len(c.Telegram.AnnounceChatIDs) == 0 {
		return fmt.Errorf("telegram.announce_chat_ids must not be empty")
	}
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone: invalid %q: %w", tz, err)
		}
	}
	for _, t := range c.Digest.Times {
		if _, _, err := ParseHHMM(t); err != nil {
			return fmt.Errorf("digest.times: %w", err)
		}
	}
	for key, raw := range map[string]string{
		"telegram.poll_timeout": c.Telegram.PollTimeout,
		"twitch.poll_interval":  c.Twitch.PollInterval,
		"announce.lookup_delay": c.Announce.LookupDelay,
		"reminder.interval":     c.Reminder.Interval,
		"anchor.ttl":            c.Anchor.TTL,
	} {
		if _, err := ParseDurationField(key, raw); err != nil {
			return err
		}
	}
	return nil
}

// Location resolves the configured timezone (UTC when unset).
// Validate() guarantees the name parses, so errors collapse to UTC.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReminderTargets returns the reminder destination set, falling back to the
// announce set when not configured separately.
func (c *Config) ReminderTargets() []int64 {
	if len(c.Telegram.ReminderChatIDs) > 0 {
		return c.Telegram.ReminderChatIDs
	}
	return c.Telegram.AnnounceChatIDs
}

// DigestTargets returns the digest destination set, falling back to the
// announce set when not configured separately.
func (c *Config) DigestTargets() []int64 {
	if len(c.Telegram.DigestChatIDs) > 0 {
		return c.Telegram.DigestChatIDs
	}
	return c.Telegram.AnnounceChatIDs
}

// DigestTimes returns the configured digest fire times with defaults applied.
func (c *Config) DigestTimes() []string {
	if len(c.Digest.Times) > 0 {
		return c.Digest.Times
	}
	return []string{"10:00", "14:00"}
}

// ParseHHMM validates a wall-clock "HH:MM" string.
func ParseHHMM(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return t.Hour(), t.Minute(), nil
}
