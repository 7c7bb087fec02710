package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/config"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/constants"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/pipeline"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/results"
)

// VideosHandler runs video files as background jobs.
type VideosHandler struct {
	config          *config.Config
	jobManager      *JobManager
	newOrchestrator OrchestratorFactory
	logger          *slog.Logger
	baseCtx         context.Context
}

// NewVideosHandler creates a new videos handler. Jobs are cancelled when
// baseCtx is done.
func NewVideosHandler(baseCtx context.Context, deps Deps, jm *JobManager) *VideosHandler {
	return &VideosHandler{
		config:          deps.Config,
		jobManager:      jm,
		newOrchestrator: deps.NewOrchestrator,
		logger:          deps.logger(),
		baseCtx:         baseCtx,
	}
}

// Start handles POST /videos. The video comes either as the multipart file
// "video" or as a server-side path in "video_path".
func (h *VideosHandler) Start(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes(h.config))
	if err := r.ParseMultipartForm(constants.MultipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		respondError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	stride, ok := formInt(r, "stride", 0)
	if !ok {
		respondError(w, http.StatusBadRequest, "stride must be a non-negative integer")
		return
	}
	threshold, ok := formFloat(r, "threshold", 0)
	if !ok || threshold < -1 || threshold > 1 {
		respondError(w, http.StatusBadRequest, "threshold must be a number within [-1, 1]")
		return
	}

	jobID := uuid.New().String()
	videoPath, err := h.resolveVideo(r, jobID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, ctx := h.jobManager.CreateJob(h.baseCtx, jobID, videoPath, VideoJobOptions{Stride: stride, Threshold: threshold})
	go h.runVideoJob(ctx, job)

	respondJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"job_id":  jobID,
		"status":  string(JobStatusPending),
	})
}

// resolveVideo stores an uploaded video under the upload directory, or
// checks that a given server-side path exists.
func (h *VideosHandler) resolveVideo(r *http.Request, jobID string) (string, error) {
	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["video"]; len(files) > 0 {
			dir := h.config.Web.UploadDir
			if err := os.MkdirAll(dir, 0o755); err != nil {
				h.logger.Error("creating upload directory", "dir", dir, "error", err)
				return "", errors.New("failed to store video")
			}
			path := filepath.Join(dir, jobID+"_"+filepath.Base(files[0].Filename))
			if err := saveUpload(files[0], path); err != nil {
				return "", err
			}
			return path, nil
		}
	}

	path := r.FormValue("video_path")
	if path == "" {
		return "", errors.New("video file or video_path is required")
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("video not found: %s", filepath.Base(path))
	}
	return path, nil
}

func (h *VideosHandler) runVideoJob(ctx context.Context, job *VideoJob) {
	job.mu.Lock()
	if job.Status == JobStatusCancelled {
		job.mu.Unlock()
		return
	}
	job.Status = JobStatusRunning
	opts := job.Options
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Data: map[string]string{"video_path": job.VideoPath}})

	orch := h.newOrchestrator(opts.Threshold, opts.Stride)
	res, err := orch.ProcessVideo(ctx, job.VideoPath, pipeline.VideoOptions{
		Stride: opts.Stride,
		Output: job.ID + ".json",
		Progress: func(framesRead, faces int) {
			job.mu.Lock()
			job.FramesRead = framesRead
			job.Faces = faces
			job.mu.Unlock()
			job.SendEvent(JobEvent{Type: "progress", Data: map[string]int{"frames_read": framesRead, "faces": faces}})
		},
	})

	if ctx.Err() != nil {
		job.Cancel()
		h.logger.Info("video job cancelled", "job_id", job.ID)
		return
	}
	if err != nil {
		h.failJob(job, err)
		return
	}

	matches := 0
	for _, rec := range res.Records {
		if rec.Matched {
			matches++
		}
	}
	result := &VideoJobResult{
		FramesRead:  res.FramesRead,
		Faces:       len(res.Records),
		Matches:     matches,
		ResultsPath: res.Location,
	}

	now := time.Now()
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.FramesRead = res.FramesRead
	job.Faces = len(res.Records)
	job.CompletedAt = &now
	job.Result = result
	job.mu.Unlock()

	h.logger.Info("video job completed", "job_id", job.ID, "faces", result.Faces, "matches", matches)
	job.SendEvent(JobEvent{Type: "completed", Data: result})
}

func (h *VideosHandler) failJob(job *VideoJob, err error) {
	h.logger.Warn("video job failed", "job_id", job.ID, "error", err)
	now := time.Now()
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = err.Error()
	job.CompletedAt = &now
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "job_error", Message: err.Error()})
}

// List handles GET /jobs: finished jobs, newest first.
func (h *VideosHandler) List(w http.ResponseWriter, r *http.Request) {
	out := []JobView{}
	for _, job := range h.jobManager.ListJobs() {
		snap := job.snapshot()
		if isJobTerminal(snap.Status) {
			out = append(out, snap)
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *VideosHandler) lookup(w http.ResponseWriter, r *http.Request) *VideoJob {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return nil
	}
	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return job
}

// Status handles GET /jobs/{jobId}.
func (h *VideosHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	respondJSON(w, http.StatusOK, job.snapshot())
}

// Events handles GET /jobs/{jobId}/events as a server-sent event stream.
func (h *VideosHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			if job := h.jobManager.GetJob(id); job != nil {
				return job
			}
			return nil
		},
		func(j SSEJob) any {
			return j.(*VideoJob).snapshot()
		},
	)
}

// Cancel handles DELETE /jobs/{jobId}.
func (h *VideosHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	if !job.Cancel() {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "status": string(JobStatusCancelled)})
}

// Results handles GET /jobs/{jobId}/results: the persisted per-face records
// of a completed job.
func (h *VideosHandler) Results(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	snap := job.snapshot()
	if snap.Status != JobStatusCompleted || snap.Result == nil {
		respondError(w, http.StatusConflict, "job has no results yet")
		return
	}
	if snap.Result.ResultsPath == "" {
		respondError(w, http.StatusNotFound, "results were not persisted")
		return
	}

	recs, err := results.Load(snap.Result.ResultsPath)
	if err != nil {
		h.logger.Error("loading results", "job_id", snap.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read results")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", snap.ID+".json"))
	respondJSON(w, http.StatusOK, recs)
}
