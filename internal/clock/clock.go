package clock

import "time"

// Clock supplies the current UTC instant. Every deadline comparison in the
// auction engine goes through this so tests can pin time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}
