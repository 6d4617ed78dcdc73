package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-archive/internal/config"
	"github.com/kozaktomas/photo-archive/internal/ingest"
)

// IngestHandler runs directory ingests as background jobs.
type IngestHandler struct {
	pipeline *ingest.Pipeline
	cfg      config.IngestConfig
	jobs     *JobManager
	log      *zap.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(pipeline *ingest.Pipeline, cfg config.IngestConfig, jobs *JobManager, log *zap.Logger) *IngestHandler {
	return &IngestHandler{pipeline: pipeline, cfg: cfg, jobs: jobs, log: log}
}

const errIngestRunning = "an ingest job is already running"

// IngestStartRequest names server-side directories to ingest.
type IngestStartRequest struct {
	Directories []string `json:"directories"`
	Recursive   bool     `json:"recursive"`
	MetadataCSV string   `json:"metadata_csv,omitempty"`
}

// Start validates the request, lists the files and launches the job.
func (h *IngestHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h.pipeline == nil {
		respondError(w, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}

	var req IngestStartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if len(req.Directories) == 0 {
		respondError(w, http.StatusBadRequest, "directories are required")
		return
	}
	// Cheap early rejection before walking the directories; TryCreateJob
	// below is what actually serializes concurrent starts.
	if h.jobs.Running() {
		respondError(w, http.StatusConflict, errIngestRunning)
		return
	}

	paths, err := ingest.CollectFiles(req.Directories, req.Recursive, &h.cfg)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var metadata map[string]map[string]string
	if req.MetadataCSV != "" {
		metadata, err = readMetadataFile(req.MetadataCSV)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	job, ok := h.jobs.TryCreateJob(uuid.NewString(), req.Directories, req.Recursive)
	if !ok {
		respondError(w, http.StatusConflict, errIngestRunning)
		return
	}
	job.update(func(j *IngestJob) { j.TotalFiles = len(paths) })

	h.log.Info("starting ingest job",
		zap.String("job_id", job.ID),
		zap.Int("files", len(paths)),
		zap.String("metadata", sanitizeForLog(req.MetadataCSV)))
	go h.run(job, paths, metadata)

	respondJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      JobStatusPending,
		"total_files": len(paths),
	})
}

func readMetadataFile(path string) (map[string]map[string]string, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path on the server
	if err != nil {
		return nil, fmt.Errorf("opening metadata file: %w", err)
	}
	defer f.Close()
	return ingest.ReadMetadata(f)
}

// run executes the ingest job in the background.
func (h *IngestHandler) run(job *IngestJob, paths []string, metadata map[string]map[string]string) {
	ctx, cancel := context.WithCancel(context.Background())
	job.setCancel(cancel)
	defer cancel()
	if job.GetStatus() == JobStatusCancelled {
		// Cancelled before the goroutine started.
		cancel()
	}

	job.update(func(j *IngestJob) {
		if j.Status == JobStatusPending {
			j.Status = JobStatusRunning
		}
	})
	job.SendEvent(JobEvent{Type: "started", Message: "Ingest job started", Data: map[string]int{"total_files": len(paths)}})

	summary := h.pipeline.ProcessFiles(ctx, paths, metadata, func(p ingest.Progress) {
		job.update(func(j *IngestJob) { j.ProcessedFiles = p.Done })
		data := map[string]any{"path": p.Path, "done": p.Done, "total": p.Total}
		if p.Err != nil {
			data["error"] = p.Err.Error()
		} else {
			data["faces"] = p.Faces
			data["labels"] = p.Labels
		}
		job.SendEvent(JobEvent{Type: "progress", Data: data})
	})

	now := time.Now()
	var status JobStatus
	job.update(func(j *IngestJob) {
		j.CompletedAt = &now
		j.Result = &summary
		if j.Status != JobStatusCancelled {
			j.Status = JobStatusCompleted
		}
		status = j.Status
	})
	if status == JobStatusCompleted {
		job.SendEvent(JobEvent{Type: "completed", Message: "Ingest job completed", Data: summary})
	}
}

// Status returns the job's current state.
func (h *IngestHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// List returns all known jobs.
func (h *IngestHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.ListJobs()
	out := make([]*IngestJob, len(jobs))
	for i, job := range jobs {
		out[i] = job.Snapshot()
	}
	respondJSON(w, http.StatusOK, out)
}

// Events streams job progress as server-sent events.
func (h *IngestHandler) Events(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	streamJob(w, r, job)
}

// Cancel cancels a running job. A finished job is removed from the history.
func (h *IngestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if isJobTerminal(job.GetStatus()) {
		h.jobs.DeleteJob(job.ID)
		respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}
