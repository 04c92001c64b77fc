package news

import (
	"fmt"
	"time"
)

// Resolution is the width of the chunks a clip search is split into.
type Resolution string

const (
	Monthly Resolution = "monthly"
	Weekly  Resolution = "weekly"
)

// ParseResolution accepts "monthly" or "weekly"; empty means monthly.
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(s) {
	case "", Monthly:
		return Monthly, nil
	case Weekly:
		return Weekly, nil
	}
	return "", fmt.Errorf("unknown resolution %q", s)
}

// DateRange is a closed interval of days.
type DateRange struct {
	First time.Time
	Last  time.Time
}

func (r DateRange) String() string {
	return r.First.Format("2006-01-02") + ".." + r.Last.Format("2006-01-02")
}

// Partition splits [start, end] into request-sized chunks, ordered and
// contiguous.
//
// Monthly chunks are aligned to whole calendar months, so the first and last
// chunk can reach outside [start, end]. Weekly chunks are 7-day windows that
// advance 6 days, sharing their boundary day with the next window.
func Partition(start, end time.Time, res Resolution) ([]DateRange, error) {
	start, end = day(start), day(end)
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s",
			ErrInvalidRange, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	switch res {
	case Monthly, "":
		return monthly(start, end), nil
	case Weekly:
		return weekly(start, end), nil
	}
	return nil, fmt.Errorf("unknown resolution %q", res)
}

func monthly(start, end time.Time) []DateRange {
	var ranges []DateRange
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(last); m = m.AddDate(0, 1, 0) {
		ranges = append(ranges, DateRange{
			First: m,
			Last:  m.AddDate(0, 1, -1),
		})
	}
	return ranges
}

func weekly(start, end time.Time) []DateRange {
	var ranges []DateRange
	for s := start; ; {
		e := s.AddDate(0, 0, 6)
		ranges = append(ranges, DateRange{First: s, Last: e})
		if !e.Before(end) {
			return ranges
		}
		s = e
	}
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
