package floodgate

import "time"

// Clock abstracts the engine's time source.
// Production code uses the system clock; tests inject a fake to drive
// window pruning, penalty expiry and sweeps deterministically.
type Clock interface {
	Now() time.Time
}

// systemClock is the default Clock backed by time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by the real system clock.
func SystemClock() Clock { return systemClock{} }
