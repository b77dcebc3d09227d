// Package durationfmt parses and formats the duration grammar used in
// configuration keys and alert annotations: ^[0-9]+[smhd]$ (case-insensitive).
package durationfmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var pattern = regexp.MustCompile(`^([0-9]+)([sSmMhHdD])$`)

var unitSeconds = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
}

// Parse converts a string like "30s", "5m", "2h", "1d" into a time.Duration.
// Plain numbers without a unit suffix are rejected.
func Parse(s string) (time.Duration, error) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("durationfmt: invalid duration %q, want <n>[smhd]", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("durationfmt: invalid duration %q: %w", s, err)
	}
	unit := unitSeconds[strings.ToLower(m[2])[0]]
	return time.Duration(n*unit) * time.Second, nil
}

// Format renders a duration using the largest unit (d > h > m > s) that
// divides it evenly, so that Parse(Format(d)) == d for every duration that
// is a whole number of seconds.
func Format(d time.Duration) string {
	secs := int64(d / time.Second)
	switch {
	case secs != 0 && secs%86400 == 0:
		return fmt.Sprintf("%dd", secs/86400)
	case secs != 0 && secs%3600 == 0:
		return fmt.Sprintf("%dh", secs/3600)
	case secs != 0 && secs%60 == 0:
		return fmt.Sprintf("%dm", secs/60)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
