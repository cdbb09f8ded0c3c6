package core

import "time"

// Clock abstracts wall-clock reads so the engine's timestamp policy can be
// tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the process wall clock.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
