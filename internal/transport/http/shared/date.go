package shared

import (
	"fmt"
	"strings"
	"time"
)

// ParseDate accepts YYYY-MM-DD only; leave dates are civil dates.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

// ParseClock parses HH:MM into minutes after midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("time must be HH:MM: %w", err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
