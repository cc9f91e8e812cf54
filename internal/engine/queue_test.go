package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerQueue_FIFO(t *testing.T) {
	q := newTriggerQueue()

	require.True(t, q.Enqueue(TriggerStartup))
	require.True(t, q.Enqueue(TriggerTick))
	assert.Equal(t, 2, q.Len())

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a signal after enqueue")
	}

	assert.Equal(t, []Trigger{TriggerStartup, TriggerTick}, q.Drain())
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())
}

func TestTriggerQueue_SignalCoalesces(t *testing.T) {
	q := newTriggerQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(TriggerReconnect)
	}

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
	assert.Len(t, q.Drain(), 5)
}

func TestTriggerQueue_Close(t *testing.T) {
	q := newTriggerQueue()
	q.Enqueue(TriggerTick)
	q.Close()

	assert.False(t, q.Enqueue(TriggerManual), "enqueue after close should fail")
	assert.Zero(t, q.Len())
}

func TestCoalesce(t *testing.T) {
	assert.Empty(t, coalesce(nil))
	assert.Equal(t, []Trigger{TriggerTick}, coalesce([]Trigger{TriggerTick}))
	assert.Equal(t, []Trigger{TriggerReconnect}, coalesce([]Trigger{TriggerReconnect, TriggerTick, TriggerManual}))
}

func TestTrigger_Scheduled(t *testing.T) {
	assert.False(t, TriggerManual.scheduled())
	assert.True(t, TriggerTick.scheduled())
	assert.True(t, TriggerStartup.scheduled())
	assert.True(t, TriggerReconnect.scheduled())
}
