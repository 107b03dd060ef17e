package core

import "time"

// Clock is the single time source for all deadline decisions.
// Client-reported timestamps are never consulted.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a func to Clock; handy for pinning time in tests.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
