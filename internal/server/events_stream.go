package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/utils"
	"github.com/rs/zerolog"
)

// streamEventTypes lists every event type the unified stream forwards
var streamEventTypes = append(append([]events.EventType{}, events.RunEventTypes...),
	events.NoiseModelReloaded,
	events.SweepStarted,
	events.SweepCompleted,
	events.SystemStatusChanged,
	events.ErrorOccurred,
)

// EventsStreamHandler handles unified Server-Sent Events (SSE) streaming for all system events.
type EventsStreamHandler struct {
	eventBus  *events.Bus
	log       zerolog.Logger
	heartbeat time.Duration
}

// NewEventsStreamHandler creates a new unified events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus:  eventBus,
		log:       log.With().Str("component", "events_stream").Logger(),
		heartbeat: 30 * time.Second,
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
// Query parameters: types (comma separated) and run_id narrow the stream.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	typesFilter := r.URL.Query().Get("types")
	runID := r.URL.Query().Get("run_id")

	subscribed := streamEventTypes
	if typesFilter != "" {
		subscribed = nil
		for _, t := range utils.ParseList(typesFilter) {
			subscribed = append(subscribed, events.EventType(t))
		}
	}

	h.log.Info().
		Str("types_filter", typesFilter).
		Str("run_id", runID).
		Msg("Client connected to unified event stream")

	// Buffer to prevent blocking publishers
	eventChan := make(chan *events.Event, 100)

	eventHandler := func(event *events.Event) {
		if runID != "" && event.RunID != runID {
			return
		}
		// Non-blocking send (drop if channel full)
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	for _, eventType := range subscribed {
		unsubscribe := h.eventBus.Subscribe(eventType, eventHandler)
		defer unsubscribe()
	}

	fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to unified event stream",
	}))
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			eventJSON := h.encodeEvent(map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"run_id":    event.RunID,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			})
			fmt.Fprintf(w, "data: %s\n\n", eventJSON)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

// encodeEvent encodes an event map to JSON string.
func (h *EventsStreamHandler) encodeEvent(event map[string]interface{}) string {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
