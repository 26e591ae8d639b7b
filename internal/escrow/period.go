package escrow

import "time"

// Week is the default period length.
const Week = 7 * 24 * time.Hour

// Period is a discrete time bucket: floor(unix seconds / period length).
type Period uint64

// Clock maps wall-clock time to periods.
type Clock struct {
	PeriodSeconds uint64
}

// NewClock builds a clock for the given period length, falling back to a week.
func NewClock(length time.Duration) Clock {
	secs := uint64(length / time.Second)
	if secs == 0 {
		secs = uint64(Week / time.Second)
	}
	return Clock{PeriodSeconds: secs}
}

// Period returns the period containing t. Times before the epoch map to 0.
func (c Clock) Period(t time.Time) Period {
	unix := t.Unix()
	if unix <= 0 {
		return 0
	}
	return Period(uint64(unix) / c.PeriodSeconds)
}

// Start returns the first instant of p.
func (c Clock) Start(p Period) time.Time {
	return time.Unix(int64(uint64(p)*c.PeriodSeconds), 0).UTC()
}

// Length returns the period length as a duration.
func (c Clock) Length() time.Duration {
	return time.Duration(c.PeriodSeconds) * time.Second
}
