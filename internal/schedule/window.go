// Package schedule gates the crawler to operator-defined active hours.
package schedule

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultSleepSlice bounds how long the daemon sleeps in one stretch while
// waiting for the window to open, so a shutdown signal is honored promptly.
const DefaultSleepSlice = 60 * time.Second

// Window is a daily active-hours range in local time. Overnight ranges
// (start after end, e.g. 21:00-05:00) wrap past midnight. The zero value is
// always active.
type Window struct {
	start   int // minutes since midnight
	end     int
	bounded bool
}

// AlwaysActive returns a window without restrictions.
func AlwaysActive() Window {
	return Window{}
}

var clockPattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)

// ParseWindow parses an active-hours string such as "09:00-17:30" or
// "9pm-6am". An empty string yields an always-active window.
func ParseWindow(s string) (Window, error) {
	trimmed := strings.TrimSpace(strings.ToLower(s))
	if trimmed == "" {
		return AlwaysActive(), nil
	}
	parts := strings.SplitN(trimmed, "-", 2)
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("active hours %q: want START-END", s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("active hours start: %w", err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("active hours end: %w", err)
	}
	if start == end {
		return Window{}, fmt.Errorf("active hours %q: start equals end", s)
	}
	return Window{start: start, end: end, bounded: true}, nil
}

func parseClock(s string) (int, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid hour %q", s)
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil {
			return 0, fmt.Errorf("invalid minute %q", s)
		}
	}
	switch m[3] {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("invalid 12h hour %q", s)
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("invalid 12h hour %q", s)
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return 0, fmt.Errorf("invalid 24h hour %q", s)
		}
	}
	if minute > 59 {
		return 0, fmt.Errorf("invalid minute %q", s)
	}
	return hour*60 + minute, nil
}

// Status reports whether now falls inside the window and, when it does not,
// how long until the window next opens (including day rollover).
func (w Window) Status(now time.Time) (bool, time.Duration) {
	if !w.bounded {
		return true, 0
	}
	minute := now.Hour()*60 + now.Minute()

	var active bool
	if w.start <= w.end {
		active = minute >= w.start && minute < w.end
	} else {
		// Overnight range wraps past midnight.
		active = minute >= w.start || minute < w.end
	}
	if active {
		return true, 0
	}

	wait := time.Duration(w.start-minute) * time.Minute
	if minute >= w.start {
		wait += 24 * time.Hour
	}
	// Land on the start of the minute, not partway through the current one.
	wait -= time.Duration(now.Second())*time.Second + time.Duration(now.Nanosecond())
	if wait < 0 {
		wait = 0
	}
	return false, wait
}

// String renders the window for logs.
func (w Window) String() string {
	if !w.bounded {
		return "always"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.start/60, w.start%60, w.end/60, w.end%60)
}

// Sleep blocks for total, waking every slice to honor context cancellation.
// It returns ctx.Err() when canceled, nil when the full duration elapsed.
func Sleep(ctx context.Context, total, slice time.Duration) error {
	if slice <= 0 {
		slice = DefaultSleepSlice
	}
	deadline := time.Now().Add(total)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining > slice {
			remaining = slice
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
