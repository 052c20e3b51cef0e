package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversByType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []*Event
	unsubscribe := bus.Subscribe(RunStarted, func(e *Event) { got = append(got, e) })
	bus.Subscribe(RunCompleted, func(*Event) { t.Error("wrong type delivered") })

	bus.Emit(RunStarted, "workflow", "run-1", map[string]interface{}{"seed": 1})
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.False(t, got[0].Timestamp.IsZero())

	unsubscribe()
	unsubscribe()
	bus.Emit(RunStarted, "workflow", "run-2", nil)
	assert.Len(t, got, 1)
	assert.Equal(t, 0, bus.Subscribers(RunStarted))
	assert.Equal(t, 1, bus.Subscribers(RunCompleted))
}

func TestBusRecoversFromPanickingHandler(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(ErrorOccurred, func(*Event) { panic("handler bug") })
	bus.Subscribe(ErrorOccurred, func(*Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Emit(ErrorOccurred, "test", "", nil)
	})
	assert.True(t, delivered)
}

func TestBusConcurrentSubscribeAndPublish(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(StageCompleted, func(*Event) {
				mu.Lock()
				count++
				mu.Unlock()
			})
			bus.Emit(StageCompleted, "test", "", nil)
			unsub()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, count, 20)
	assert.Equal(t, 0, bus.Subscribers(StageCompleted))
}

func TestManagerEmitTyped(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(RunFailed, func(e *Event) { got = e })
	manager.EmitTyped("workflow", "run-9", &RunStatusData{Status: "failed", NoiseModel: "fakecairo", Error: "bad"})

	require.NotNil(t, got)
	assert.Equal(t, "workflow", got.Module)
	assert.Equal(t, "run-9", got.RunID)
	assert.Equal(t, "fakecairo", got.Data["noise_model"])
	assert.Equal(t, "bad", got.Data["error"])

	var errEvent *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { errEvent = e })
	manager.EmitError("server", "", errors.New("disk full"), map[string]interface{}{"path": "/tmp"})
	require.NotNil(t, errEvent)
	assert.Equal(t, "disk full", errEvent.Data["error"])
	assert.Same(t, bus, manager.Bus())
}
