package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TransitionHook is invoked with a snapshot of a job after its status
// changed. Hooks run outside the store lock, so they may call back into
// the store.
type TransitionHook func(job *Job)

// Stats summarizes the store contents by status.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}

// Store is the in-memory, thread-safe job table. Entries expire TTL after
// creation and the oldest tenth is evicted when the store is at capacity.
// All reads return clones; callers never hold references into store
// internals.
type Store struct {
	ttl        time.Duration
	maxEntries int

	mu   sync.Mutex
	jobs map[string]*Job
	hook TransitionHook
}

func NewStore(ttl time.Duration, maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &Store{
		ttl:        ttl,
		maxEntries: maxEntries,
		jobs:       make(map[string]*Job),
	}
}

// SetTransitionHook registers the hook fired on status transitions.
func (s *Store) SetTransitionHook(hook TransitionHook) {
	s.mu.Lock()
	s.hook = hook
	s.mu.Unlock()
}

// CreatePending inserts a minimally-populated job in PENDING state, the
// fast-submit path. Expired entries are dropped and capacity is enforced
// before insertion. Returns a snapshot of the stored job.
func (s *Store) CreatePending(job *Job) *Job {
	now := time.Now()
	stored := cloneJob(job)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.Status = StatusPending
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.ChunkTotal = len(stored.Chunks)
	stored.ChunkDone = len(stored.TranslatedChunks)

	s.mu.Lock()
	s.cleanupExpiredLocked(now)
	s.ensureCapacityLocked()
	s.jobs[stored.ID] = stored
	snapshot := cloneJob(stored)
	s.mu.Unlock()

	return snapshot
}

// Create inserts a job whose content is already prepared (chunks known),
// entering IN_PROGRESS directly. Same eviction rules as CreatePending.
func (s *Store) Create(job *Job) *Job {
	now := time.Now()
	stored := cloneJob(job)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Status == "" {
		stored.Status = StatusInProgress
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.ChunkTotal = len(stored.Chunks)
	stored.ChunkDone = len(stored.TranslatedChunks)

	s.mu.Lock()
	s.cleanupExpiredLocked(now)
	s.ensureCapacityLocked()
	s.jobs[stored.ID] = stored
	snapshot := cloneJob(stored)
	s.mu.Unlock()

	return snapshot
}

// Restore inserts a recovered job as-is, bypassing eviction. Used only
// during startup recovery.
func (s *Store) Restore(job *Job) {
	if job == nil || job.ID == "" {
		return
	}
	stored := cloneJob(job)

	s.mu.Lock()
	s.jobs[stored.ID] = stored
	s.mu.Unlock()
}

// Get returns a snapshot of the job, lazily removing it when expired.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok && s.expired(job, time.Now()) {
		delete(s.jobs, id)
		ok = false
	}
	var snapshot *Job
	if ok {
		snapshot = cloneJob(job)
	}
	s.mu.Unlock()

	return snapshot, ok
}

// SetStatus transitions a job to the given status.
func (s *Store) SetStatus(id string, status Status) (*Job, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	hook := s.hook
	s.mu.Unlock()

	s.fire(hook, snapshot)
	return snapshot, true
}

// SetPrepared stores the resolved content and the chunk sequence produced
// by the splitter, moving the job to IN_PROGRESS. Chunks are set exactly
// once; a second call is ignored.
func (s *Store) SetPrepared(id, content string, chunks []string, title string) (*Job, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	job.Content = content
	if len(job.Chunks) == 0 {
		job.Chunks = append([]string(nil), chunks...)
		job.ChunkTotal = len(job.Chunks)
	}
	if title != "" && job.Title == "" {
		job.Title = title
	}
	job.Status = StatusInProgress
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	hook := s.hook
	s.mu.Unlock()

	s.fire(hook, snapshot)
	return snapshot, true
}

// UpdateProgress appends one translated chunk; the translated sequence is
// only ever extended, never reordered or overwritten. When the append
// completes the job, the status flips to COMPLETED in the same atomic
// operation.
func (s *Store) UpdateProgress(id, translatedChunk string, usage TokenUsage) (*Job, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	job.TranslatedChunks = append(job.TranslatedChunks, translatedChunk)
	job.ChunkDone = len(job.TranslatedChunks)
	job.Usage.Add(usage)
	job.UpdatedAt = time.Now()

	completed := job.ChunkTotal > 0 && job.ChunkDone == job.ChunkTotal
	if completed {
		job.Status = StatusCompleted
		job.Error = ""
	}
	snapshot := cloneJob(job)
	hook := s.hook
	s.mu.Unlock()

	if completed {
		s.fire(hook, snapshot)
	}
	return snapshot, true
}

// MarkCompleted forces a job to COMPLETED.
func (s *Store) MarkCompleted(id string) (*Job, bool) {
	return s.SetStatus(id, StatusCompleted)
}

// MarkFailed records the failure reason and transitions to FAILED.
func (s *Store) MarkFailed(id, reason string) (*Job, bool) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	job.Status = StatusFailed
	job.Error = reason
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	hook := s.hook
	s.mu.Unlock()

	s.fire(hook, snapshot)
	return snapshot, true
}

// ResetForRetry returns a FAILED job to PENDING with its translated
// progress cleared. The original chunk sequence is kept so a retried job
// re-translates the same chunks.
func (s *Store) ResetForRetry(id string) (*Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, Errorf(KindNotFound, "job %s not found", id)
	}
	if job.Status != StatusFailed {
		status := job.Status
		s.mu.Unlock()
		return nil, Errorf(KindConflict, "job %s is %s, only failed jobs can be retried", id, status)
	}
	job.Status = StatusPending
	job.Error = ""
	job.TranslatedChunks = nil
	job.ChunkDone = 0
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	hook := s.hook
	s.mu.Unlock()

	s.fire(hook, snapshot)
	return snapshot, nil
}

// Delete removes a job, reporting whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()
	return ok
}

// List returns a page of jobs sorted newest first, optionally filtered by
// status. Returns the page, the total matching count and whether more
// pages follow.
func (s *Store) List(offset, limit int, statusFilter Status) ([]*Job, int, bool) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	matched := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if statusFilter != "" && job.Status != statusFilter {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]*Job, 0)
	if offset < total {
		for _, job := range matched[offset:end] {
			page = append(page, cloneJob(job))
		}
	}
	s.mu.Unlock()

	return page, total, offset+limit < total
}

// Stats returns job counts grouped by status.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStatus := make(map[Status]int)
	for _, job := range s.jobs {
		byStatus[job.Status]++
	}
	return Stats{Total: len(s.jobs), ByStatus: byStatus}
}

// Snapshot returns a point-in-time copy of every job, for persistence.
func (s *Store) Snapshot() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		ret = append(ret, cloneJob(job))
	}
	return ret
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Store) expired(job *Job, now time.Time) bool {
	return s.ttl > 0 && now.Sub(job.CreatedAt) > s.ttl
}

func (s *Store) cleanupExpiredLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, job := range s.jobs {
		if s.expired(job, now) {
			delete(s.jobs, id)
		}
	}
}

// ensureCapacityLocked evicts the oldest tenth (by creation time) when the
// store is full.
func (s *Store) ensureCapacityLocked() {
	if len(s.jobs) < s.maxEntries {
		return
	}

	byAge := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		byAge = append(byAge, job)
	}
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].CreatedAt.Before(byAge[j].CreatedAt)
	})

	toRemove := (len(byAge) + 9) / 10
	for i := 0; i < toRemove; i++ {
		delete(s.jobs, byAge[i].ID)
	}
}

func (s *Store) fire(hook TransitionHook, job *Job) {
	if hook == nil || job == nil {
		return
	}
	hook(job)
}
