// Package persistence snapshots the in-memory job store to disk so jobs
// survive process restarts. State lives in a single versioned JSON file;
// completed translations are written to one plain-text file per job so
// the snapshot itself stays small.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MimeLyc/longdoc-translator/internal/jobs"
	"github.com/MimeLyc/longdoc-translator/pkg/log"
)

const (
	// SchemaVersion tags the snapshot layout. Snapshots with a different
	// version are ignored rather than misread.
	SchemaVersion = 1

	snapshotName = "tasks.json"
	resultsDir   = "results"
)

// jobRecord is the persisted shape of a job. Chunk sequences and per-chunk
// translations are deliberately left out; an interrupted job restarts from
// its original content and a completed one reads its result file.
type jobRecord struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Content      string    `json:"original_content,omitempty"`
	URL          string    `json:"url,omitempty"`
	Title        string    `json:"title,omitempty"`
	SourceURL    string    `json:"source_url,omitempty"`
	Domain       string    `json:"domain,omitempty"`
	SourceLang   string    `json:"source_lang,omitempty"`
	TargetLang   string    `json:"target_lang,omitempty"`
	Publish      bool      `json:"publish,omitempty"`
	Error        string    `json:"error,omitempty"`
	ChunkTotal   int       `json:"chunk_total"`
	ChunkDone    int       `json:"chunk_done"`
	InputTokens  int64     `json:"input_tokens,omitempty"`
	OutputTokens int64     `json:"output_tokens,omitempty"`
	ResultFile   string    `json:"result_file,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type snapshotFile struct {
	Version     int                  `json:"version"`
	LastUpdated time.Time            `json:"last_updated"`
	Tasks       map[string]jobRecord `json:"tasks"`
}

// SnapshotStore mirrors a jobs.Store onto disk.
type SnapshotStore struct {
	dir   string
	store *jobs.Store

	// mu serializes writers so the periodic save and transition-driven
	// saves never interleave their temp files.
	mu sync.Mutex
}

func New(dir string, store *jobs.Store) (*SnapshotStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, resultsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &SnapshotStore{dir: dir, store: store}, nil
}

func (p *SnapshotStore) snapshotPath() string {
	return filepath.Join(p.dir, snapshotName)
}

func (p *SnapshotStore) resultPath(id string) string {
	return filepath.Join(p.dir, resultsDir, id+".txt")
}

// Save writes the current store contents to disk. The snapshot is written
// to a temp file and renamed over the old one, so readers never observe a
// torn file.
func (p *SnapshotStore) Save() error {
	snapshot := snapshotFile{
		Version:     SchemaVersion,
		LastUpdated: time.Now(),
		Tasks:       make(map[string]jobRecord),
	}
	for _, job := range p.store.Snapshot() {
		snapshot.Tasks[job.ID] = recordOf(job)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tmp := p.snapshotPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, p.snapshotPath()); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// LoadAndRecover restores jobs from the snapshot file. Terminal jobs come
// back as they were; interrupted ones (PENDING, PREPARING, IN_PROGRESS)
// are reset to PENDING with their progress cleared and handed to requeue,
// since their chunk state was not persisted. A missing snapshot is not an
// error. Returns how many jobs were restored and how many requeued.
func (p *SnapshotStore) LoadAndRecover(requeue func(id string)) (int, int, error) {
	data, err := os.ReadFile(p.snapshotPath())
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot snapshotFile
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return 0, 0, fmt.Errorf("parse snapshot: %w", err)
	}
	if snapshot.Version != SchemaVersion {
		log.Warn("Ignoring snapshot with schema version %d (want %d)", snapshot.Version, SchemaVersion)
		return 0, 0, nil
	}

	restored, requeued := 0, 0
	for _, record := range snapshot.Tasks {
		job := jobOf(record)
		if !job.Status.Valid() {
			log.Warn("Skipping job %s with unknown status %q", record.ID, record.Status)
			continue
		}

		if !job.Status.Terminal() {
			job.Status = jobs.StatusPending
			job.Error = ""
			job.ChunkTotal = 0
			job.ChunkDone = 0
		}
		p.store.Restore(job)
		restored++

		if job.Status == jobs.StatusPending {
			if requeue != nil {
				requeue(job.ID)
			}
			requeued++
		}
	}
	return restored, requeued, nil
}

// SaveResult writes the final translation for a completed job.
func (p *SnapshotStore) SaveResult(id, text string) error {
	tmp := p.resultPath(id) + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if err := os.Rename(tmp, p.resultPath(id)); err != nil {
		return fmt.Errorf("replace result: %w", err)
	}
	return nil
}

// LoadResult reads a previously saved translation, the fallback for
// completed jobs restored from a snapshot.
func (p *SnapshotStore) LoadResult(id string) (string, bool) {
	data, err := os.ReadFile(p.resultPath(id))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// DeleteResult removes a job's result file if present.
func (p *SnapshotStore) DeleteResult(id string) {
	if err := os.Remove(p.resultPath(id)); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to remove result file for %s: %v", id, err)
	}
}

// CleanupExpired drops terminal jobs whose last update is older than the
// retention window, along with their result files, then rewrites the
// snapshot. Returns the number of jobs removed.
func (p *SnapshotStore) CleanupExpired(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	removed := 0
	for _, job := range p.store.Snapshot() {
		if !job.Status.Terminal() || job.UpdatedAt.After(cutoff) {
			continue
		}
		if p.store.Delete(job.ID) {
			p.DeleteResult(job.ID)
			removed++
		}
	}

	if removed > 0 {
		log.Info("Retention cleanup removed %d jobs", removed)
		if err := p.Save(); err != nil {
			log.Error("Failed to save snapshot after cleanup: %v", err)
		}
	}
	return removed
}

func recordOf(job *jobs.Job) jobRecord {
	record := jobRecord{
		ID:           job.ID,
		Status:       string(job.Status),
		Content:      job.Content,
		URL:          job.URL,
		Title:        job.Title,
		SourceURL:    job.SourceURL,
		Domain:       job.Domain,
		SourceLang:   job.SourceLang,
		TargetLang:   job.TargetLang,
		Publish:      job.Publish,
		Error:        job.Error,
		ChunkTotal:   job.ChunkTotal,
		ChunkDone:    job.ChunkDone,
		InputTokens:  job.Usage.InputTokens,
		OutputTokens: job.Usage.OutputTokens,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
	if job.Status == jobs.StatusCompleted {
		record.ResultFile = filepath.Join(resultsDir, job.ID+".txt")
	}
	return record
}

func jobOf(record jobRecord) *jobs.Job {
	return &jobs.Job{
		ID:         record.ID,
		Status:     jobs.Status(record.Status),
		Content:    record.Content,
		URL:        record.URL,
		Title:      record.Title,
		SourceURL:  record.SourceURL,
		Domain:     record.Domain,
		SourceLang: record.SourceLang,
		TargetLang: record.TargetLang,
		Publish:    record.Publish,
		Error:      record.Error,
		ChunkTotal: record.ChunkTotal,
		ChunkDone:  record.ChunkDone,
		Usage: jobs.TokenUsage{
			InputTokens:  record.InputTokens,
			OutputTokens: record.OutputTokens,
		},
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}
