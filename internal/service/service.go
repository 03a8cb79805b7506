// Package service is the orchestration layer over the job store, the
// worker and the snapshot store. HTTP handlers call into it; it owns
// validation, language detection and the persistence side effects of each
// operation.
package service

import (
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/MimeLyc/longdoc-translator/internal/config"
	"github.com/MimeLyc/longdoc-translator/internal/jobs"
	"github.com/MimeLyc/longdoc-translator/internal/persistence"
	"github.com/MimeLyc/longdoc-translator/pkg/log"
)

var validDomains = map[string]bool{
	"tech":     true,
	"business": true,
	"academic": true,
}

type Service struct {
	cfg       config.Config
	store     *jobs.Store
	worker    *jobs.Worker
	snapshots *persistence.SnapshotStore
}

func New(cfg config.Config, store *jobs.Store, worker *jobs.Worker, snapshots *persistence.SnapshotStore) *Service {
	s := &Service{
		cfg:       cfg,
		store:     store,
		worker:    worker,
		snapshots: snapshots,
	}
	store.SetTransitionHook(s.onTransition)
	return s
}

// onTransition persists every status change. Completed jobs additionally
// get their full translation written to the per-job result file before the
// metadata snapshot, so a crash between the two never loses a result.
func (s *Service) onTransition(job *jobs.Job) {
	if job.Status == jobs.StatusCompleted {
		if err := s.snapshots.SaveResult(job.ID, job.PartialResult()); err != nil {
			log.Error("Failed to save result for job %s: %v", job.ID, err)
		}
	}
	if err := s.snapshots.Save(); err != nil {
		log.Error("Failed to save snapshot: %v", err)
	}
}

type SubmitRequest struct {
	Content    string
	URL        string
	Title      string
	SourceURL  string
	Domain     string
	SourceLang string
	TargetLang string
	Publish    bool
}

// SubmitFast validates the request, stores a PENDING job and enqueues it.
// All expensive work (fetch, split, translate) happens later on the worker;
// this path is a store write and a channel send.
func (s *Service) SubmitFast(req SubmitRequest) (*jobs.Job, error) {
	content := strings.TrimSpace(req.Content)
	url := strings.TrimSpace(req.URL)
	if content == "" && url == "" {
		return nil, jobs.NewError(jobs.KindValidation, "either content or url is required")
	}

	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	if domain == "" {
		domain = "tech"
	}
	if !validDomains[domain] {
		return nil, jobs.Errorf(jobs.KindValidation, "unknown domain %q, expected tech, business or academic", domain)
	}

	targetLang := strings.TrimSpace(req.TargetLang)
	if targetLang == "" {
		targetLang = s.cfg.Pipeline.TargetLanguage.String()
	}

	sourceLang := strings.TrimSpace(req.SourceLang)
	if sourceLang == "" && content != "" {
		sourceLang = detectLang(content)
	}
	if sourceLang == "" {
		sourceLang = s.cfg.Pipeline.SourceLanguage
	}

	sourceURL := req.SourceURL
	if sourceURL == "" {
		sourceURL = url
	}

	job := s.store.CreatePending(&jobs.Job{
		Content:    req.Content,
		URL:        url,
		Title:      strings.TrimSpace(req.Title),
		SourceURL:  sourceURL,
		Domain:     domain,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Publish:    req.Publish,
	})
	s.worker.Enqueue(job.ID)
	log.Info("Job %s submitted (domain=%s, %s->%s)", job.ID, domain, sourceLang, targetLang)
	return job, nil
}

// detectLang guesses the source language from a sample of the content.
func detectLang(content string) string {
	sample := content
	if len(sample) > 1000 {
		sample = sample[:1000]
	}
	info := whatlanggo.Detect(sample)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// Progress returns the live job record.
func (s *Service) Progress(id string) (*jobs.Job, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return nil, jobs.Errorf(jobs.KindNotFound, "job %s not found", id)
	}
	return job, nil
}

// Result returns the full translated text of a completed job, read from
// the result file with the in-memory concatenation as fallback.
func (s *Service) Result(id string) (string, *jobs.Job, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return "", nil, jobs.Errorf(jobs.KindNotFound, "job %s not found", id)
	}
	if job.Status != jobs.StatusCompleted {
		return "", nil, jobs.Errorf(jobs.KindConflict, "job %s is %s, result is available once completed", id, job.Status)
	}
	if text, ok := s.snapshots.LoadResult(id); ok {
		return text, job, nil
	}
	return job.PartialResult(), job, nil
}

// Retry re-enqueues a FAILED job with its progress cleared.
func (s *Service) Retry(id string) (*jobs.Job, error) {
	job, err := s.store.ResetForRetry(id)
	if err != nil {
		return nil, err
	}
	s.worker.Enqueue(job.ID)
	log.Info("Job %s re-enqueued", id)
	return job, nil
}

// Cancel withdraws a job that has not started running yet.
func (s *Service) Cancel(id string) (*jobs.Job, error) {
	if _, ok := s.store.Get(id); !ok {
		return nil, jobs.Errorf(jobs.KindNotFound, "job %s not found", id)
	}
	if err := s.worker.Cancel(id); err != nil {
		return nil, err
	}
	job, ok := s.store.Get(id)
	if !ok {
		return nil, jobs.Errorf(jobs.KindNotFound, "job %s not found", id)
	}
	return job, nil
}

// Delete removes the job and its result file and saves the snapshot
// immediately.
func (s *Service) Delete(id string) error {
	if !s.store.Delete(id) {
		return jobs.Errorf(jobs.KindNotFound, "job %s not found", id)
	}
	s.snapshots.DeleteResult(id)
	if err := s.snapshots.Save(); err != nil {
		log.Error("Failed to save snapshot after deleting %s: %v", id, err)
	}
	log.Info("Job %s deleted", id)
	return nil
}

// List returns a page of jobs, newest first.
func (s *Service) List(offset, limit int, status string) ([]*jobs.Job, int, bool, error) {
	filter := jobs.Status(strings.ToLower(strings.TrimSpace(status)))
	if filter != "" && !filter.Valid() {
		return nil, 0, false, jobs.Errorf(jobs.KindValidation, "unknown status %q", status)
	}
	page, total, hasMore := s.store.List(offset, limit, filter)
	return page, total, hasMore, nil
}

// Stats reports job counts by status plus the worker queue depth.
func (s *Service) Stats() ServiceStats {
	stats := s.store.Stats()
	return ServiceStats{
		Total:      stats.Total,
		ByStatus:   stats.ByStatus,
		QueueDepth: s.worker.QueueDepth(),
	}
}

type ServiceStats struct {
	Total      int
	ByStatus   map[jobs.Status]int
	QueueDepth int
}
