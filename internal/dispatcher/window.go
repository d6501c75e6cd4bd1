package dispatcher

import (
	"fmt"
	"strings"
	"time"
)

// Window is a daily send window in minutes from midnight, both ends
// inclusive. A window whose End is before its Start wraps past midnight.
type Window struct {
	Start int
	End   int
}

// ParseWindows parses ranges like "21:30-23:30" or "23:00-01:30".
func ParseWindows(ranges []string) ([]Window, error) {
	out := make([]Window, 0, len(ranges))
	for _, rng := range ranges {
		from, to, ok := strings.Cut(strings.TrimSpace(rng), "-")
		if !ok {
			return nil, fmt.Errorf("window %q: want HH:MM-HH:MM", rng)
		}
		start, err := parseClock(from)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", rng, err)
		}
		end, err := parseClock(to)
		if err != nil {
			return nil, fmt.Errorf("window %q: %w", rng, err)
		}
		out = append(out, Window{Start: start, End: end})
	}
	return out, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (w Window) contains(minute int) bool {
	if w.Start <= w.End {
		return minute >= w.Start && minute <= w.End
	}
	return minute >= w.Start || minute <= w.End
}

// inWindow reports whether t falls in any window. No windows means always.
func inWindow(windows []Window, t time.Time) bool {
	if len(windows) == 0 {
		return true
	}
	m := t.Hour()*60 + t.Minute()
	for _, w := range windows {
		if w.contains(m) {
			return true
		}
	}
	return false
}
