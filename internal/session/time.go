package session

import (
	"time"
)

// Timed is implemented by keys that carry the Clock tick at which they were generated.
type Timed interface {
	T() int64
}

// Clock counts fixed length ticks since it was initialized.
type Clock struct {
	t0   time.Time
	step time.Duration
}

// Init starts the Clock, ticks last step. It errors if step <= 0.
func (self *Clock) Init(step time.Duration) error {
	if step <= 0 {
		return newError("invalid Clock step %v", step)
	}
	self.step = step
	self.t0 = time.Now()

	return nil
}

// T returns the current tick.
func (self Clock) T() int64 {
	return int64(time.Since(self.t0) / self.step)
}

// At returns the wall time at which tick t starts.
func (self Clock) At(t int64) time.Time {
	return self.t0.Add(time.Duration(t) * self.step)
}

// Step returns the tick duration.
func (self Clock) Step() time.Duration {
	return self.step
}

var _ Timed = Clock{}
