package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/swaggo/swag"

	_ "github.com/custodia-labs/sercha-extractor/docs" // registers the OpenAPI document
	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

const maxEventBodyBytes = 1 << 20

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// HealthResponse reports each backing component
// @Description Health status per component
type HealthResponse struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// EventAcceptedResponse is returned once an invocation is queued
// @Description Queued invocation
type EventAcceptedResponse struct {
	TaskID     string            `json:"task_id"`
	Status     domain.TaskStatus `json:"status" example:"pending"`
	EventType  domain.EventType  `json:"event_type"`
	SyncUnitID string            `json:"sync_unit_id"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Pings the task queue and the configured stores
// @Tags         Health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Failure      503  {object}  HealthResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "api document unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}

// Invocation endpoints

// handleSubmitEvent godoc
// @Summary      Submit invocation event
// @Description  Queues one extraction invocation for a sync unit
// @Tags         Events
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      domain.InvocationEvent  true  "Invocation event"
// @Success      202      {object}  EventAcceptedResponse
// @Failure      400      {object}  ErrorResponse  "Invalid event"
// @Failure      401      {object}  ErrorResponse  "Unauthorized"
// @Failure      503      {object}  ErrorResponse  "Queue unavailable"
// @Router       /events [post]
func (s *Server) handleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	var event domain.InvocationEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes)).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !event.EventType.IsKnown() {
		writeError(w, http.StatusBadRequest, "unknown event_type")
		return
	}
	if event.SyncUnitID == "" {
		writeError(w, http.StatusBadRequest, "sync_unit_id is required")
		return
	}
	if event.Mode != "" && event.Mode != domain.SyncModeInitial && event.Mode != domain.SyncModeIncremental {
		writeError(w, http.StatusBadRequest, "mode must be INITIAL or INCREMENTAL")
		return
	}

	task := domain.NewInvocationTask(event)
	if err := s.taskQueue.Enqueue(r.Context(), task); err != nil {
		s.logger.Error("failed to enqueue invocation", "sync_unit_id", event.SyncUnitID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue event")
		return
	}

	caller := ""
	if authCtx := GetAuthContext(r.Context()); authCtx != nil {
		caller = authCtx.Subject
	}
	s.logger.Info("invocation queued",
		"task_id", task.ID,
		"event_type", event.EventType,
		"sync_unit_id", event.SyncUnitID,
		"caller", caller,
	)

	writeJSON(w, http.StatusAccepted, EventAcceptedResponse{
		TaskID:     task.ID,
		Status:     task.Status,
		EventType:  event.EventType,
		SyncUnitID: event.SyncUnitID,
	})
}

// handleGetTask godoc
// @Summary      Get task
// @Description  Returns the queue state of an invocation task
// @Tags         Events
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  domain.Task
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      404  {object}  ErrorResponse  "Task not found"
// @Router       /tasks/{id} [get]
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.taskQueue.GetTask(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrNotFound) || (err == nil && task == nil) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleQueueStats godoc
// @Summary      Queue statistics
// @Tags         Events
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  driven.QueueStats
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Router       /queue/stats [get]
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.taskQueue.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
