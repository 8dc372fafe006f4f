package utils

import "time"

// TimeUnit selects the granularity used by Adjust. The zero value means
// "no unit" and leaves the base time untouched.
type TimeUnit int

const (
	UnitNone TimeUnit = iota
	Seconds
	Minutes
	Hours
)

func (u TimeUnit) String() string {
	switch u {
	case Seconds:
		return "seconds"
	case Minutes:
		return "minutes"
	case Hours:
		return "hours"
	default:
		return "none"
	}
}

// Clock supplies the current instant. Token issuance, validation and the
// revocation sweeper all read time through it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall clock in UTC.
var SystemClock Clock = systemClock{}

// Adjust returns base shifted by amount units. A zero base or an unknown
// unit returns base as-is.
func Adjust(base time.Time, amount int64, unit TimeUnit) time.Time {
	if base.IsZero() {
		Logger.Debug("Adjust called with zero base time; returning it unchanged")
		return base
	}

	var step time.Duration
	switch unit {
	case Seconds:
		step = time.Second
	case Minutes:
		step = time.Minute
	case Hours:
		step = time.Hour
	default:
		Logger.Debugf("Adjust called with unit %s; returning base unchanged", unit)
		return base
	}
	return base.Add(time.Duration(amount) * step)
}
