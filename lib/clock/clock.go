package clock

import (
	"fmt"
	"time"
)

func Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// Duration duration between two times represented as strings
func Duration(from, to string) (time.Duration, error) {
	fromTime, err := time.Parse("2006-01-02T15:04:05Z", from)
	if err != nil {
		return 0, fmt.Errorf("from is not a valid time: %s", from)
	}
	toTime, err := time.Parse("2006-01-02T15:04:05Z", to)
	if err != nil {
		return 0, fmt.Errorf("to is not a valid time: %s", to)
	}
	return toTime.Sub(fromTime), nil
}

// Age human-readable duration since the given time, used in ticket
// closure notices ("open for 2h15m")
func Age(since time.Time) string {
	d := time.Since(since).Round(time.Minute)
	if d < time.Minute {
		return "less than a minute"
	}
	return d.String()
}
