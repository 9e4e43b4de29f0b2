package stats

import "time"

// Month is one calendar month in UTC
type Month struct {
	First time.Time
	Last  time.Time
}

// MonthOf returns the month containing t
func MonthOf(t time.Time) Month {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Month{First: first, Last: first.AddDate(0, 1, -1)}
}

// Label renders the month as YYYY-MM
func (m Month) Label() string {
	return m.First.Format("2006-01")
}

// Days returns the number of days in the month
func (m Month) Days() int {
	return m.Last.Day()
}

// Next returns the following month
func (m Month) Next() Month {
	return MonthOf(m.First.AddDate(0, 1, 0))
}

// Months lists every month from the one containing from through the one containing to.
// It returns nil when from is after to.
func Months(from, to time.Time) []Month {
	end := MonthOf(to)
	var out []Month
	for m := MonthOf(from); !m.First.After(end.First); m = m.Next() {
		out = append(out, m)
	}
	return out
}

// DailyAverage is the truncated per-day average of a monthly count
func DailyAverage(count, days int) int {
	if days <= 0 {
		return 0
	}
	return count / days
}

// Days lists from, from+step, ... up to and including to. A step below one day is treated as one day.
func Days(from, to time.Time, stepDays int) []time.Time {
	if stepDays < 1 {
		stepDays = 1
	}
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, stepDays) {
		out = append(out, d)
	}
	return out
}
