package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/avnsound/duplexd/pkg/database"
	"github.com/avnsound/duplexd/pkg/logger"
)

// API handles REST API endpoints for the duplexd dashboard.
type API struct {
	logger  *logger.Logger
	runRepo *database.RunRepository

	mu     sync.RWMutex
	status StatusDTO
}

// StatusDTO is the live snapshot of the currently running (or most
// recently finished) loop invocation, updated once per iteration.
type StatusDTO struct {
	RunID           string `json:"run_id"`
	Running         bool   `json:"running"`
	SyncFrames      int64  `json:"sync_frames"`
	ReadBalance     int64  `json:"read_balance"`
	WriteBalance    int64  `json:"write_balance"`
	ReadCorrection  int64  `json:"read_correction"`
	WriteCorrection int64  `json:"write_correction"`
	Finished        uint   `json:"finished"`
	Repetitions     uint   `json:"repetitions"`
}

// RunDTO is a lightweight response for a persisted run record.
type RunDTO struct {
	ID                uint    `json:"id"`
	RunID             string  `json:"run_id"`
	Period            uint    `json:"period"`
	Repetitions       uint    `json:"repetitions"`
	SampleRate        uint    `json:"sample_rate"`
	Stepping          uint    `json:"stepping"`
	MemoryMap         bool    `json:"memory_map"`
	Completed         uint    `json:"completed"`
	Success           bool    `json:"success"`
	FailureReason     string  `json:"failure_reason,omitempty"`
	GapResets         int     `json:"gap_resets"`
	LateWakeups       int     `json:"late_wakeups"`
	FinalReadCorrect  int64   `json:"final_read_correction"`
	FinalWriteCorrect int64   `json:"final_write_correction"`
	DurationSeconds   float64 `json:"duration_seconds"`
	StartTime         int64   `json:"start_time"`
	EndTime           int64   `json:"end_time"`
}

// NewAPI creates a new API instance.
func NewAPI(log *logger.Logger) *API {
	return &API{logger: log}
}

// SetRunRepo wires the run-history repository used by /api/runs.
func (a *API) SetRunRepo(repo *database.RunRepository) {
	a.runRepo = repo
}

// SetStatus updates the live status snapshot exposed by /api/status. The
// loop driver's iteration hook calls this once per iteration.
func (a *API) SetStatus(s StatusDTO) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

func runDTO(r database.RunRecord) RunDTO {
	return RunDTO{
		ID:                r.ID,
		RunID:             r.RunID,
		Period:            r.Period,
		Repetitions:       r.Repetitions,
		SampleRate:        r.SampleRate,
		Stepping:          r.Stepping,
		MemoryMap:         r.MemoryMap,
		Completed:         r.Completed,
		Success:           r.Success,
		FailureReason:     r.FailureReason,
		GapResets:         r.GapResets,
		LateWakeups:       r.LateWakeups,
		FinalReadCorrect:  r.FinalReadCorrect,
		FinalWriteCorrect: r.FinalWriteCorrect,
		DurationSeconds:   r.Duration().Seconds(),
		StartTime:         r.StartTime.Unix(),
		EndTime:           r.EndTime.Unix(),
	}
}

// HandleStatus handles the /api/status endpoint: the live state of the
// loop driver, updated once per iteration.
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.mu.RLock()
	status := a.status
	a.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		a.logger.Error("Failed to encode status response", logger.Error(err))
	}
}

// HandleRuns handles the /api/runs endpoint: paginated run history.
func (a *API) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if a.runRepo == nil {
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"runs":     []RunDTO{},
			"total":    0,
			"page":     1,
			"per_page": 50,
		}); err != nil {
			a.logger.Error("Failed to encode runs response", logger.Error(err))
		}
		return
	}

	page := 1
	perPage := 50
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if perPageStr := r.URL.Query().Get("per_page"); perPageStr != "" {
		if pp, err := strconv.Atoi(perPageStr); err == nil && pp > 0 && pp <= 100 {
			perPage = pp
		}
	}

	runs, total, err := a.runRepo.GetRecentPaginated(page, perPage)
	if err != nil {
		a.logger.Error("Failed to get runs", logger.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, runDTO(run))
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"runs":     dtos,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	}); err != nil {
		a.logger.Error("Failed to encode runs response", logger.Error(err))
	}
}

// HandleRun handles the /api/runs/{run_id} endpoint.
func (a *API) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := runIDFromPath(r.URL.Path)
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if a.runRepo == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	run, err := a.runRepo.GetByRunID(runID)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(runDTO(*run)); err != nil {
		a.logger.Error("Failed to encode run response", logger.Error(err))
	}
}

func runIDFromPath(path string) string {
	const prefix = "/api/runs/"
	if len(path) <= len(prefix) {
		return ""
	}
	return path[len(prefix):]
}
