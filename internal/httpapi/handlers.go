package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/longdoc-translator/internal/jobs"
	"github.com/MimeLyc/longdoc-translator/internal/service"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type submitRequest struct {
	Content      string `json:"content"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	SourceURL    string `json:"source_url"`
	Domain       string `json:"domain"`
	SourceLang   string `json:"source_lang"`
	TargetLang   string `json:"target_lang"`
	SyncToNotion bool   `json:"sync_to_notion"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body must be JSON")
		return
	}

	job, err := s.svc.SubmitFast(service.SubmitRequest{
		Content:    req.Content,
		URL:        req.URL,
		Title:      req.Title,
		SourceURL:  req.SourceURL,
		Domain:     req.Domain,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Publish:    req.SyncToNotion,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusAccepted, map[string]any{
		"task_id":        job.ID,
		"status":         string(job.Status),
		"created_at":     job.CreatedAt.UTC().Format(time.RFC3339),
		"sync_to_notion": job.Publish,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)
	status := r.URL.Query().Get("status")

	page, total, hasMore, err := s.svc.List(offset, limit, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	tasks := make([]taskResponse, 0, len(page))
	for _, job := range page {
		tasks = append(tasks, taskOf(job, false))
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"tasks":    tasks,
		"total":    total,
		"offset":   offset,
		"limit":    limit,
		"has_more": hasMore,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	stats := s.svc.Stats()
	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		byStatus[string(status)] = n
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"total":       stats.Total,
		"by_status":   byStatus,
		"queue_depth": stats.QueueDepth,
	})
}

// handleTaskSubroutes dispatches /api/tasks/{id}[/result|/retry|/cancel].
func (s *Server) handleTaskSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "missing task id")
		return
	}

	id := rest
	action := ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		id, action = rest[:i], rest[i+1:]
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.handleGetTask(w, r, id)
		case http.MethodDelete:
			s.handleDeleteTask(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		}
	case "result":
		s.handleTaskResult(w, r, id)
	case "retry":
		s.handleTaskRetry(w, r, id)
	case "cancel":
		s.handleTaskCancel(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
	}
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.svc.Progress(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, taskOf(job, true))
}

func (s *Server) handleTaskResult(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	text, job, err := s.svc.Result(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"task_id": job.ID,
		"title":   job.DisplayTitle(),
		"result":  text,
		"token_usage": map[string]int64{
			"input_tokens":  job.Usage.InputTokens,
			"output_tokens": job.Usage.OutputTokens,
		},
	})
}

func (s *Server) handleTaskRetry(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	job, err := s.svc.Retry(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"task_id": job.ID,
		"status":  string(job.Status),
	})
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	job, err := s.svc.Cancel(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"task_id": job.ID,
		"status":  string(job.Status),
	})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.svc.Delete(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"task_id": id, "deleted": true})
}

type taskResponse struct {
	TaskID          string           `json:"task_id"`
	Status          string           `json:"status"`
	Title           string           `json:"title,omitempty"`
	URL             string           `json:"url,omitempty"`
	SourceURL       string           `json:"source_url,omitempty"`
	Domain          string           `json:"domain,omitempty"`
	SourceLang      string           `json:"source_lang,omitempty"`
	TargetLang      string           `json:"target_lang,omitempty"`
	Progress        int              `json:"progress"`
	ChunksCompleted int              `json:"chunks_completed"`
	ChunksTotal     int              `json:"chunks_total"`
	PartialResult   string           `json:"partial_result,omitempty"`
	Error           string           `json:"error,omitempty"`
	SyncToNotion    bool             `json:"sync_to_notion"`
	TokenUsage      map[string]int64 `json:"token_usage"`
	CreatedAt       string           `json:"created_at"`
	UpdatedAt       string           `json:"updated_at"`
}

func taskOf(job *jobs.Job, includePartial bool) taskResponse {
	resp := taskResponse{
		TaskID:          job.ID,
		Status:          string(job.Status),
		Title:           job.DisplayTitle(),
		URL:             job.URL,
		SourceURL:       job.SourceURL,
		Domain:          job.Domain,
		SourceLang:      job.SourceLang,
		TargetLang:      job.TargetLang,
		Progress:        job.Progress(),
		ChunksCompleted: job.ChunkDone,
		ChunksTotal:     job.ChunkTotal,
		Error:           job.Error,
		SyncToNotion:    job.Publish,
		TokenUsage: map[string]int64{
			"input_tokens":  job.Usage.InputTokens,
			"output_tokens": job.Usage.OutputTokens,
		},
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
	}
	// Completed jobs serve their full text via the result endpoint; every
	// other status, FAILED included, exposes whatever has been translated.
	if includePartial && job.Status != jobs.StatusCompleted {
		resp.PartialResult = job.PartialResult()
	}
	return resp
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeServiceError maps kind-tagged errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch jobs.KindOf(err) {
	case jobs.KindValidation:
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case jobs.KindNotFound:
		writeError(w, http.StatusNotFound, "TASK_NOT_FOUND", err.Error())
	case jobs.KindConflict:
		writeError(w, http.StatusConflict, "INVALID_STATE", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
