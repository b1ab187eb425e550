package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses an optional Go duration string from the config.
// Empty values return zero with no error; callers apply their own defaults.
func ParseDurationField(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative", key)
	}
	return d, nil
}

// DurationOr parses raw and falls back to def when raw is empty or invalid.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d == 0 {
		return def
	}
	return d
}
