package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_StartsAtEpoch(t *testing.T) {
	clock := NewFakeClock(time.Time{})
	assert.Equal(t, Epoch, clock.Now())
}

func TestFakeClock_Advance(t *testing.T) {
	clock := NewFakeClock(Epoch)

	assert.Equal(t, Epoch.Add(5*time.Second), clock.Advance(5*time.Second))
	assert.Equal(t, Epoch.Add(5*time.Second), clock.Now())

	// Now does not move on its own
	assert.Equal(t, clock.Now(), clock.Now())
}

func TestFakeClock_Set(t *testing.T) {
	clock := NewFakeClock(Epoch)
	later := Epoch.Add(time.Hour)

	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	clock := NewFakeClock(Epoch)
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Advance(time.Millisecond)
				_ = clock.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(numGoroutines*callsPerGoroutine*time.Millisecond), clock.Now())
}
