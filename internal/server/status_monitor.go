package server

import (
	"context"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	"github.com/rs/zerolog"
)

// StatusMonitor periodically checks system status and emits an event when
// the number of active runs changes
type StatusMonitor struct {
	eventManager   EventEmitter
	systemHandlers *SystemHandlers
	log            zerolog.Logger

	// Track previous state; -1 forces the first emission
	lastActiveRuns int
}

// EventEmitter publishes typed events
type EventEmitter interface {
	EmitTyped(module, runID string, data events.EventData)
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(eventManager EventEmitter, systemHandlers *SystemHandlers, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		eventManager:   eventManager,
		systemHandlers: systemHandlers,
		log:            log.With().Str("component", "status_monitor").Logger(),
		lastActiveRuns: -1,
	}
}

// Start begins periodic status monitoring until ctx is cancelled
func (m *StatusMonitor) Start(ctx context.Context, interval time.Duration) {
	go m.monitor(ctx, interval)
}

func (m *StatusMonitor) monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.checkSystemStatus()

	for {
		select {
		case <-ticker.C:
			m.checkSystemStatus()
		case <-ctx.Done():
			return
		}
	}
}

// checkSystemStatus emits SYSTEM_STATUS_CHANGED when the active run count moved
func (m *StatusMonitor) checkSystemStatus() bool {
	if m.eventManager == nil || m.systemHandlers == nil {
		return false
	}

	active := m.systemHandlers.activeRuns()
	if active == m.lastActiveRuns {
		return false
	}
	m.lastActiveRuns = active

	cpuUsage, memUsage := m.systemHandlers.cpuSampler()
	m.eventManager.EmitTyped("status_monitor", "", &events.SystemStatusData{
		ActiveRuns:    active,
		CPUPercent:    cpuUsage,
		MemoryPercent: memUsage,
	})
	m.log.Debug().Int("active_runs", active).Msg("System status changed")
	return true
}
