package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseCreateArgs splits "/set" arguments into the fire time and body.
// It needs a date, a time and at least one body word.
func ParseCreateArgs(args []string, loc *time.Location) (time.Time, string, error) {
	if len(args) < 3 {
		return time.Time{}, "", fmt.Errorf("%w: want <date> <time> <text>, got %d args", ErrParse, len(args))
	}
	at, err := ParseFireAt(args[0], args[1], loc)
	if err != nil {
		return time.Time{}, "", err
	}
	body := strings.Join(strings.Fields(strings.Join(args[2:], " ")), " ")
	if body == "" {
		return time.Time{}, "", fmt.Errorf("%w: empty text", ErrParse)
	}
	return at, body, nil
}

// looseLayout also reads fields without leading zeros ("2025-6-3 9:5").
// Stored and echoed times always use Layout.
const looseLayout = "2006-1-2 15:4"

// ParseFireAt parses "YYYY-MM-DD" and "HH:MM" as a naive time in loc.
// Month, day, hour and minute may drop their leading zero.
func ParseFireAt(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	value := strings.TrimSpace(date) + " " + strings.TrimSpace(clock)
	at, err := time.ParseInLocation(Layout, value, loc)
	if err == nil {
		return at, nil
	}
	if at, lerr := time.ParseInLocation(looseLayout, value, loc); lerr == nil {
		return at, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q %q: %v", ErrParse, date, clock, err)
}

// ParseIndex parses a 1-based list position.
func ParseIndex(args []string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%w: index required", ErrParse)
	}
	n, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return 0, fmt.Errorf("%w: index %q", ErrParse, args[0])
	}
	return n, nil
}
