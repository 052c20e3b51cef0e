package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/workflow"
	"nhooyr.io/websocket"
)

const (
	streamBuffer       = 256
	streamWriteTimeout = 5 * time.Second
)

// snapshotMessage is sent when a stream opens on a run that already finished.
type snapshotMessage struct {
	Type string        `json:"type"`
	Run  *workflow.Run `json:"run"`
}

// HandleRunStream handles GET /api/runs/{id}/stream. It upgrades to a
// websocket and forwards the run's events as JSON text messages until the
// run completes or fails.
func (h *Handler) HandleRunStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	eventChan := make(chan *events.Event, streamBuffer)
	handler := func(event *events.Event) {
		if event.RunID != id {
			return
		}
		// Non-blocking send (drop if channel full)
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("run_id", id).
				Str("event_type", string(event.Type)).
				Msg("Stream channel full, dropping event")
		}
	}

	// Subscribe before the handshake completes so no event is missed
	// between accept and the first read.
	for _, et := range events.RunEventTypes {
		unsubscribe := h.bus.Subscribe(et, handler)
		defer unsubscribe()
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// The client never sends; CloseRead handles control frames and cancels
	// ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	h.log.Info().Str("run_id", id).Msg("Client connected to run stream")

	if done, err := h.sendSnapshot(ctx, conn, id); err != nil || done {
		if err == nil {
			conn.Close(websocket.StatusNormalClosure, "run finished")
		}
		return
	}

	for {
		select {
		case event := <-eventChan:
			if err := writeEvent(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Str("run_id", id).Msg("Run stream write failed")
				return
			}
			if event.Type == events.RunCompleted || event.Type == events.RunFailed {
				conn.Close(websocket.StatusNormalClosure, "run finished")
				return
			}
		case <-ctx.Done():
			h.log.Info().Str("run_id", id).Msg("Client disconnected from run stream")
			return
		}
	}
}

// sendSnapshot writes the stored record of a run that is no longer active.
// It reports whether the stream is done.
func (h *Handler) sendSnapshot(ctx context.Context, conn *websocket.Conn, id string) (bool, error) {
	for _, active := range h.service.Active() {
		if active == id {
			return false, nil
		}
	}
	repo := h.service.Repository()
	if repo == nil {
		return false, nil
	}
	// Unknown IDs may belong to a run that is about to start.
	run, err := repo.Get(ctx, id)
	if err != nil {
		return false, nil
	}
	if run.Status == workflow.StatusRunning {
		return false, nil
	}
	data, err := json.Marshal(snapshotMessage{Type: "RUN_SNAPSHOT", Run: run})
	if err != nil {
		return true, err
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return true, conn.Write(writeCtx, websocket.MessageText, data)
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event *events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
