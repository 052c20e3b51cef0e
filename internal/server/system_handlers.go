package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/database"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ActiveRunsProvider reports the IDs of runs currently executing
type ActiveRunsProvider interface {
	Active() []string
}

// ScheduleProvider reports the cron schedule of a registered job
type ScheduleProvider interface {
	Status(name string) (scheduler.Status, bool)
}

// SystemHandlers handles system-wide monitoring and job triggers
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	runsDB    *database.DB
	runs      ActiveRunsProvider
	startedAt time.Time

	mu        sync.RWMutex
	jobs      map[string]scheduler.Job
	schedules ScheduleProvider

	// cpuSampler is replaceable in tests
	cpuSampler func() (float64, float64)
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string, runsDB *database.DB, runs ActiveRunsProvider) *SystemHandlers {
	h := &SystemHandlers{
		log:       log.With().Str("service", "system").Logger(),
		dataDir:   dataDir,
		runsDB:    runsDB,
		runs:      runs,
		startedAt: time.Now(),
		jobs:      make(map[string]scheduler.Job),
	}
	h.cpuSampler = h.getSystemStats
	return h
}

// SetJobs registers jobs that can be triggered over the API
func (h *SystemHandlers) SetJobs(jobs ...scheduler.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, job := range jobs {
		if job != nil {
			h.jobs[job.Name()] = job
		}
	}
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	ActiveRuns    int     `json:"active_runs"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsage   float64 `json:"memory_usage"`
	Goroutines    int     `json:"goroutines"`
	GoVersion     string  `json:"go_version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	LastChecked   string  `json:"last_checked"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
	FreePages int64   `json:"free_pages"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	ArtifactsMB float64 `json:"artifacts_mb"`
	TotalMB     float64 `json:"total_mb"`
}

// JobInfo describes a job that can be triggered manually
type JobInfo struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule,omitempty"`
	NextRun  string `json:"next_run,omitempty"`
	LastRun  string `json:"last_run,omitempty"`
}

// activeRuns returns the number of running pipelines
func (h *SystemHandlers) activeRuns() int {
	if h.runs == nil {
		return 0
	}
	return len(h.runs.Active())
}

// GetSystemStatusSnapshot returns a snapshot of the current system status.
func (h *SystemHandlers) GetSystemStatusSnapshot() SystemStatusResponse {
	cpuUsage, memUsage := h.cpuSampler()
	return SystemStatusResponse{
		Status:        "healthy",
		ActiveRuns:    h.activeRuns(),
		CPUUsage:      cpuUsage,
		MemoryUsage:   memUsage,
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		LastChecked:   time.Now().Format(time.RFC3339),
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.GetSystemStatusSnapshot())
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases := []DBInfo{}
	totalSizeMB := 0.0

	if h.runsDB != nil {
		stats, err := h.runsDB.GetStats()
		if err != nil {
			h.log.Error().Err(err).Str("database", h.runsDB.Name()).Msg("Failed to get database stats")
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		info := DBInfo{
			Name:      h.runsDB.Name(),
			Path:      h.runsDB.Path(),
			SizeMB:    toMB(stats.SizeBytes),
			WALSizeMB: toMB(stats.WALSizeBytes),
			PageCount: stats.PageCount,
			FreePages: stats.FreelistCount,
		}
		totalSizeMB += info.SizeMB + info.WALSizeMB
		databases = append(databases, info)
	}

	h.writeJSON(w, http.StatusOK, DatabaseStatsResponse{
		Databases:   databases,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	})
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	dataDirSize := h.getDirSize(h.dataDir)
	artifactsSize := h.getDirSize(filepath.Join(h.dataDir, "artifacts"))

	h.writeJSON(w, http.StatusOK, DiskUsageResponse{
		DataDirMB:   dataDirSize,
		ArtifactsMB: artifactsSize,
		TotalMB:     dataDirSize,
	})
}

// HandleListJobs handles GET /api/system/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	jobs := make([]JobInfo, 0, len(h.jobs))
	for name := range h.jobs {
		info := JobInfo{Name: name}
		if h.schedules != nil {
			if st, ok := h.schedules.Status(name); ok {
				info.Schedule = st.Schedule
				info.NextRun = formatRunTime(st.Next)
				info.LastRun = formatRunTime(st.Prev)
			}
		}
		jobs = append(jobs, info)
	}
	h.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func formatRunTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// SetSchedules attaches the scheduler that owns the registered jobs
func (h *SystemHandlers) SetSchedules(p ScheduleProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.schedules = p
}

// HandleTriggerJob runs a registered job in the background
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.mu.RLock()
	job, ok := h.jobs[name]
	h.mu.RUnlock()
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "Job not registered: " + name})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")
	go func() {
		if err := job.Run(); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "success", "message": "Job " + name + " triggered"})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	if dirPath == "" {
		return 0
	}
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return toMB(totalSize)
}

// getSystemStats calculates CPU and RAM usage percentages over a short
// 100ms CPU window.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func toMB(bytes int64) float64 {
	return float64(bytes) / 1024 / 1024
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSONResponse(w, status, data, h.log)
}
