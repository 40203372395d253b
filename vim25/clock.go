package vim25

import (
	"context"
	"sync"
	"time"
)

// Clock provides time operations (injectable for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// realClock implements Clock using actual system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fakeClock implements Clock with manual time control (tests only).
// Sleep advances the clock instead of blocking.
type fakeClock struct {
	mu      sync.Mutex
	current time.Time
	slept   int
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{current: start}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
	f.slept++
	return nil
}

// Advance manually advances the fake clock by d.
func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}
