package services

import "time"

// Clock abstracts wall-clock reads so day rollover can be tested.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewClock returns the production clock.
func NewClock() Clock { return realClock{} }
