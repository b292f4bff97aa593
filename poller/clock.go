package poller

import "time"

// Clock is the time source of a Scheduler.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Visibility reports whether anyone is looking at the state. While it
// returns false no task runs.
type Visibility interface {
	Visible() bool
}

// VisibilityFunc adapts a plain function to Visibility.
type VisibilityFunc func() bool

func (f VisibilityFunc) Visible() bool { return f() }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

type alwaysVisible struct{}

func (alwaysVisible) Visible() bool { return true }
