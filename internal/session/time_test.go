package session

import (
	"testing"
	"testing/synctest"
	"time"
)

func TestClockInit(t *testing.T) {
	clock := Clock{}

	for _, step := range []time.Duration{0, -10 * time.Second} {
		if err := clock.Init(step); nil == err {
			t.Errorf("Init accepted step %v", step)
		}
	}
	err := clock.Init(3 * time.Minute)
	if nil != err {
		t.Fatalf("Failed Init, got error %v", err)
	}
	if 3*time.Minute != clock.Step() {
		t.Errorf("failed Step control, got %v", clock.Step())
	}
}

func TestClockTick(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		clock := Clock{}

		time.Sleep(48*time.Hour + 20*time.Minute)
		step := 32 * time.Second
		err := clock.Init(step)
		if nil != err {
			t.Fatalf("Failed clock.Init, got error %v", err)
		}
		start := time.Now()

		time.Sleep(step - 1*time.Nanosecond)
		if 0 != clock.T() {
			t.Errorf("clock.T() -> %d != 0", clock.T())
		}
		time.Sleep(1 * time.Nanosecond)
		if 1 != clock.T() {
			t.Errorf("clock.T() -> %d != 1", clock.T())
		}
		time.Sleep(8*step - 1*time.Nanosecond)
		if 8 != clock.T() {
			t.Errorf("clock.T() -> %d != 8", clock.T())
		}
		time.Sleep(1 * time.Nanosecond)
		if 9 != clock.T() {
			t.Errorf("clock.T() -> %d != 9", clock.T())
		}

		if !start.Add(9 * step).Equal(clock.At(9)) {
			t.Errorf("failed At control, got %v", clock.At(9))
		}
	})
}
