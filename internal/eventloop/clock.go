package eventloop

import "time"

// Clock abstracts timer creation so tests can drive simulated time instead of
// sleeping through real poll intervals.
type Clock interface {
	Now() time.Time
	// AfterFunc arranges for fn to be called once after d. The returned stop
	// function reports whether it prevented the call.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

// RealClock is the production Clock backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, fn)
	return t.Stop
}
