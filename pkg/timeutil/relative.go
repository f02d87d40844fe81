package timeutil

import (
	"fmt"
	"time"
)

// Relative formats t relative to now, e.g. "5 minutes ago" or "in 2 hours".
func Relative(t time.Time) string {
	return RelativeTo(t, time.Now())
}

// RelativeTo formats t relative to now. Differences under a minute read
// "just now"; anything beyond 30 days prints the date.
func RelativeTo(t, now time.Time) string {
	d := now.Sub(t)
	future := d < 0
	if future {
		d = -d
	}

	var amount string
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		amount = plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		amount = plural(int(d/time.Hour), "hour")
	case d < 30*24*time.Hour:
		amount = plural(int(d/(24*time.Hour)), "day")
	default:
		return t.Local().Format(time.DateOnly)
	}

	if future {
		return "in " + amount
	}
	return amount + " ago"
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
