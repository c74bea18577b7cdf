// Package durationfmt parses the duration grammar accepted by every
// time-valued option in the runner: a bare number (seconds, float
// accepted) or a human-readable Go-style duration ("500ms", "1.5s",
// "2m", "1h").
package durationfmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse parses s per the grammar above. Leading/trailing whitespace is
// trimmed before either interpretation is attempted.
func Parse(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("format expected a number of seconds or a duration like \"1.5s\", got empty string")
	}

	if seconds, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("format expected a number of seconds or a duration like \"1.5s\", \"500ms\", \"2m\", \"1h\", got %q: %w", s, err)
	}
	return d, nil
}
