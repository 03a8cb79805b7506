package jobs

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusPreparing  Status = "preparing"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further worker transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// TokenUsage accumulates translator token consumption for a job.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Job is one document-translation unit of work tracked end to end.
//
// Chunks is set exactly once during preparation and never re-split
// mid-flight; TranslatedChunks is an append-only prefix of it. ChunkTotal
// and ChunkDone mirror the slice lengths and survive restarts, where the
// chunk text itself does not.
type Job struct {
	ID               string     `json:"id"`
	Status           Status     `json:"status"`
	Content          string     `json:"content"`
	URL              string     `json:"url,omitempty"`
	Chunks           []string   `json:"chunks,omitempty"`
	TranslatedChunks []string   `json:"translated_chunks,omitempty"`
	ChunkTotal       int        `json:"chunk_total"`
	ChunkDone        int        `json:"chunk_done"`
	Title            string     `json:"title,omitempty"`
	SourceURL        string     `json:"source_url,omitempty"`
	Domain           string     `json:"domain"`
	SourceLang       string     `json:"source_lang,omitempty"`
	TargetLang       string     `json:"target_lang,omitempty"`
	Publish          bool       `json:"publish"`
	Error            string     `json:"error,omitempty"`
	Usage            TokenUsage `json:"usage"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Progress returns completion as a percentage (0-100).
func (j *Job) Progress() int {
	if j.Status == StatusCompleted {
		return 100
	}
	if j.ChunkTotal == 0 {
		return 0
	}
	return j.ChunkDone * 100 / j.ChunkTotal
}

// PartialResult joins the translated chunks produced so far.
func (j *Job) PartialResult() string {
	return strings.Join(j.TranslatedChunks, "\n\n")
}

// DisplayTitle falls back to a content preview when no title is set.
func (j *Job) DisplayTitle() string {
	if j.Title != "" {
		return j.Title
	}
	preview := []rune(j.Content)
	if len(preview) > 50 {
		return string(preview[:50]) + "..."
	}
	if len(preview) == 0 {
		return j.URL
	}
	return string(preview)
}

func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	tmp.Chunks = append([]string(nil), job.Chunks...)
	tmp.TranslatedChunks = append([]string(nil), job.TranslatedChunks...)
	return &tmp
}
