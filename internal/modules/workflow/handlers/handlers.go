// Package handlers provides HTTP handlers for pipeline runs, Hamiltonian
// parsing and noise model inspection.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/domain"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/hamiltonian"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/noise"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/workflow"
	"github.com/rs/zerolog"
)

// Handler handles workflow HTTP requests
type Handler struct {
	service *workflow.Service
	bus     *events.Bus
	parser  *hamiltonian.Parser
	log     zerolog.Logger

	// runs started over HTTP execute detached from the request
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewHandler creates a new workflow handler. Runs submitted over HTTP live
// as long as ctx.
func NewHandler(
	ctx context.Context,
	service *workflow.Service,
	bus *events.Bus,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service: service,
		bus:     bus,
		parser:  hamiltonian.NewParser(log),
		log:     log.With().Str("handler", "workflow").Logger(),
		baseCtx: ctx,
	}
}

// Wait blocks until every run started by the handler has finished
func (h *Handler) Wait() {
	h.wg.Wait()
}

// ParseRequest is the body of POST /api/hamiltonian/parse
type ParseRequest struct {
	Content string `json:"content"`
	Width   int    `json:"width"`
}

// HandleCreateRun handles POST /api/runs. The run executes in the
// background; progress is available on its stream.
func (h *Handler) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req workflow.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Source = workflow.SourceAPI

	report, err := h.service.Prepare(req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		// Failures are recorded by the service and published on the bus.
		_, _ = h.service.Execute(h.baseCtx, report)
	}()

	h.writeJSON(w, http.StatusAccepted, envelope(map[string]interface{}{
		"id":          report.ID,
		"status":      workflow.StatusRunning,
		"noise_model": report.NoiseModel,
		"seed":        report.Seed,
		"shots":       report.Shots,
		"stream":      "/api/runs/" + report.ID + "/stream",
	}))
}

// HandleListRuns handles GET /api/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	repo := h.service.Repository()
	if repo == nil {
		http.Error(w, "Run history is not enabled", http.StatusServiceUnavailable)
		return
	}

	filter := workflow.RunFilter{
		NoiseModel: r.URL.Query().Get("noise_model"),
		Status:     workflow.RunStatus(r.URL.Query().Get("status")),
		Limit:      50,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	runs, err := repo.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	}))
}

// HandleGetRun handles GET /api/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	repo := h.service.Repository()
	if repo == nil {
		http.Error(w, "Run history is not enabled", http.StatusServiceUnavailable)
		return
	}

	run, err := repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(run))
}

// HandleBestRun handles GET /api/runs/best?noise_model=
func (h *Handler) HandleBestRun(w http.ResponseWriter, r *http.Request) {
	repo := h.service.Repository()
	if repo == nil {
		http.Error(w, "Run history is not enabled", http.StatusServiceUnavailable)
		return
	}

	name := r.URL.Query().Get("noise_model")
	if !noise.IsSupported(name) {
		http.Error(w, "noise_model must name a supported device", http.StatusBadRequest)
		return
	}
	run, err := repo.Best(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if run == nil {
		http.Error(w, "No completed runs", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(run))
}

// HandleCancelRun handles POST /api/runs/{id}/cancel
func (h *Handler) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.service.Cancel(id) {
		http.Error(w, "Run is not active", http.StatusNotFound)
		return
	}
	h.log.Info().Str("run_id", id).Msg("Run cancelled")
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"id":        id,
		"cancelled": true,
	}))
}

// HandleActiveRuns handles GET /api/runs/active
func (h *Handler) HandleActiveRuns(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"ids": h.service.Active(),
	}))
}

// HandleParseHamiltonian handles POST /api/hamiltonian/parse
func (h *Handler) HandleParseHamiltonian(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Width < 0 {
		http.Error(w, "width must not be negative", http.StatusBadRequest)
		return
	}

	parsed, diags := h.parser.Parse(req.Content, req.Width)
	diagnostics := make([]string, len(diags))
	for i, d := range diags {
		diagnostics[i] = d.String()
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"width":       parsed.Width,
		"terms":       parsed.Terms,
		"constant":    parsed.Constant(),
		"support":     parsed.Support(),
		"diagnostics": diagnostics,
	}))
}

// HandleListNoiseModels handles GET /api/noise-models
func (h *Handler) HandleListNoiseModels(w http.ResponseWriter, r *http.Request) {
	cache := h.service.NoiseCache()
	models := make([]map[string]interface{}, 0, len(noise.SupportedDevices))
	for _, name := range noise.SupportedDevices {
		models = append(models, map[string]interface{}{
			"name":   name,
			"cached": cache.Cached(name),
			"path":   noise.Path(cache.Dir(), name),
		})
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"models": models,
	}))
}

// HandleGetNoiseModel handles GET /api/noise-models/{name}
func (h *Handler) HandleGetNoiseModel(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.NoiseCache().Get(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"device":         m.Device,
		"schema_version": m.SchemaVersion,
		"num_qubits":     m.NumQubits,
		"basis_gates":    m.BasisGates,
		"coupling_map":   m.Edges(),
		"qubits":         m.Qubits,
	}))
}

// HandleGetMolecule handles GET /api/molecule
func (h *Handler) HandleGetMolecule(w http.ResponseWriter, r *http.Request) {
	m := h.service.Model()
	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"name":              m.Name,
		"basis":             m.Basis,
		"charge":            m.Charge,
		"spin":              m.Spin,
		"num_qubits":        m.NumQubits(),
		"num_particles":     m.NumParticles(),
		"nuclear_repulsion": m.NuclearRepulsion(),
		"fingerprint":       m.Fingerprint(),
	}))
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// writeError maps domain error kinds to HTTP status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case workflow.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsKind(err, domain.KindArgument):
		status = http.StatusBadRequest
	case domain.IsKind(err, domain.KindIO):
		status = http.StatusNotFound
	case domain.IsKind(err, domain.KindInvalidNoiseModel):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"kind":  domain.KindOf(err),
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
