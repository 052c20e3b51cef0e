package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus
func (m *Manager) Bus() *Bus {
	return m.bus
}

// EmitTyped publishes typed data and logs it. Progress events are logged at
// debug level since they arrive once per iteration.
func (m *Manager) EmitTyped(module, runID string, data EventData) {
	eventType := data.EventType()
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		RunID:     runID,
		Data:      convertEventDataToMap(data),
	}

	m.bus.Publish(event)

	logEvent := m.log.Info()
	if eventType == OptimizerProgress || eventType == EvaluationProgress {
		logEvent = m.log.Debug()
	}
	eventJSON, _ := json.Marshal(event)
	logEvent.
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitError emits an error event
func (m *Manager) EmitError(module, runID string, err error, context map[string]interface{}) {
	m.EmitTyped(module, runID, &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	})
}

// convertEventDataToMap flattens typed data into the generic event payload
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}
	return result
}
