package utils

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

var isoDuration = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)(?:\.\d+)?S)?)?$`)

const (
	day = 24 * time.Hour
	// Calendar components have no fixed length; they are read as 365 and
	// 30 days.
	year  = 365 * day
	month = 30 * day
)

var durationUnits = []time.Duration{year, month, day, time.Hour, time.Minute, time.Second}

// EncodeDuration renders d in the PT<seconds>S form the task service expects.
// Sub-second precision is dropped.
func EncodeDuration(d time.Duration) (string, error) {
	if d < 0 {
		return "", fmt.Errorf("duration must be >= 0, got %s", d)
	}
	return fmt.Sprintf("PT%dS", int64(d/time.Second)), nil
}

// DecodeDuration parses a task service time span. Besides PT<N>S it accepts
// the year/month/day/hour/minute forms the service uses for its own
// defaults. Spans longer than time.Duration can hold are rejected.
func DecodeDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	m := isoDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var total time.Duration
	for i, unit := range durationUnits {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if n > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("duration %q overflows", s)
		}
		part := time.Duration(n) * unit
		if total > math.MaxInt64-part {
			return 0, fmt.Errorf("duration %q overflows", s)
		}
		total += part
	}

	return total, nil
}

// ValidDuration reports whether s is a time span the task service accepts.
func ValidDuration(s string) bool {
	if s == "P" || s == "PT" {
		return false
	}
	return isoDuration.MatchString(s)
}

func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "Past due"
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%d days, %d hours", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%d hours, %d minutes", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%d minutes, %d seconds", minutes, seconds)
	}
	return fmt.Sprintf("%d seconds", seconds)
}
