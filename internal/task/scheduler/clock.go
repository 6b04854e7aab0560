package scheduler

import "time"

// Clock is the time source for arming jobs. AfterFunc returns a stop
// function with time.Timer.Stop semantics.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

func (wallClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// WallClock returns the real UTC clock.
func WallClock() Clock { return wallClock{} }
