package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MimeLyc/longdoc-translator/pkg/log"
)

// FetchResult carries the resolved document for a source locator.
type FetchResult struct {
	Title   string
	Content string
}

// Fetcher resolves a source locator into raw text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// TranslateRequest is one chunk translation call. PrecedingContext holds
// the trailing characters of the previous translated chunk, empty for the
// first chunk.
type TranslateRequest struct {
	Text             string
	PrecedingContext string
	Domain           string
	SourceLang       string
	TargetLang       string
	ChunkIndex       int
	ChunkTotal       int
}

type TranslateResult struct {
	Text  string
	Usage TokenUsage
}

// Translator turns a source chunk into translated text. Calls may be slow,
// must honor the context deadline and must tolerate the same chunk being
// resent on retry.
type Translator interface {
	Translate(ctx context.Context, req TranslateRequest) (TranslateResult, error)
}

type PublishRequest struct {
	Title     string
	Content   string
	SourceURL string
	Domain    string
}

type PublishResult struct {
	PageURL string
}

// Publisher pushes a completed translation downstream, best effort.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
}

// SplitFunc produces the ordered chunk sequence for resolved content.
type SplitFunc func(text string) []string

const (
	defaultContextTailChars = 500
	defaultQueueCapacity    = 1024
)

// errStopping marks a retry loop cut short by Stop rather than by an
// exhausted attempt budget.
var errStopping = errors.New("worker stopping")

type WorkerConfig struct {
	MaxRetries        int
	RetryInitialDelay time.Duration
	ChunkTimeout      time.Duration
	ContextTailChars  int
	ExternalCallSlots int64
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = time.Second
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = 5 * time.Minute
	}
	if c.ContextTailChars <= 0 {
		c.ContextTailChars = defaultContextTailChars
	}
	if c.ExternalCallSlots <= 0 {
		c.ExternalCallSlots = 4
	}
	return c
}

// Worker drains the job queue with a single consumer, so jobs run strictly
// serially in submission order. External fetch/translate/publish calls run
// on their own goroutine behind a bounded executor and are awaited with a
// deadline, keeping the worker loop itself free of network I/O.
type Worker struct {
	store      *Store
	split      SplitFunc
	fetcher    Fetcher
	translator Translator
	publisher  Publisher
	cfg        WorkerConfig

	slots *semaphore.Weighted

	pendingMu sync.Mutex
	pending   map[string]struct{}

	queue    chan string
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorker(store *Store, split SplitFunc, fetcher Fetcher, translator Translator, publisher Publisher, cfg WorkerConfig) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		store:      store,
		split:      split,
		fetcher:    fetcher,
		translator: translator,
		publisher:  publisher,
		cfg:        cfg,
		slots:      semaphore.NewWeighted(cfg.ExternalCallSlots),
		pending:    make(map[string]struct{}),
		queue:      make(chan string, defaultQueueCapacity),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the single consuming goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop halts the worker after the in-flight job step finishes.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
	})
}

// Enqueue appends a job id to the FIFO queue.
func (w *Worker) Enqueue(id string) {
	w.pendingMu.Lock()
	w.pending[id] = struct{}{}
	w.pendingMu.Unlock()

	select {
	case w.queue <- id:
	default:
		go func() { w.queue <- id }()
	}
}

// Cancel withdraws a job that has not started yet. Jobs already running
// cannot be cancelled.
func (w *Worker) Cancel(id string) error {
	w.pendingMu.Lock()
	_, queued := w.pending[id]
	if queued {
		delete(w.pending, id)
	}
	w.pendingMu.Unlock()

	if !queued {
		return Errorf(KindConflict, "job %s is not queued, running jobs cannot be cancelled", id)
	}
	w.store.MarkFailed(id, "cancelled before execution")
	log.Info("Job %s cancelled", id)
	return nil
}

// QueueDepth reports how many jobs are queued and not yet started.
func (w *Worker) QueueDepth() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return len(w.pending)
}

func (w *Worker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case id := <-w.queue:
			if !w.claim(id) {
				// Cancelled while queued.
				continue
			}
			w.execute(id)
		}
	}
}

// claim removes the id from the pending set, reporting false for jobs
// cancelled while queued.
func (w *Worker) claim(id string) bool {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if _, ok := w.pending[id]; !ok {
		return false
	}
	delete(w.pending, id)
	return true
}

// execute runs the two-phase lifecycle for one job. Failures are recorded
// on the job record; nothing propagates out of the loop.
func (w *Worker) execute(id string) {
	job, ok := w.store.Get(id)
	if !ok {
		log.Warn("Job %s vanished before execution", id)
		return
	}

	log.Info("Job %s: preparing", id)
	w.store.SetStatus(id, StatusPreparing)

	content := job.Content
	title := job.Title
	if job.URL != "" && strings.TrimSpace(content) == "" {
		result, err := w.fetch(job.URL)
		if err != nil {
			w.store.MarkFailed(id, fmt.Sprintf("fetch %s failed: %v", job.URL, err))
			return
		}
		content = result.Content
		if title == "" {
			title = result.Title
		}
	}

	if strings.TrimSpace(content) == "" {
		w.store.MarkFailed(id, "content is empty")
		return
	}

	// A retried job keeps its original chunk sequence.
	chunks := job.Chunks
	if len(chunks) == 0 {
		chunks = w.split(content)
	}
	prepared, ok := w.store.SetPrepared(id, content, chunks, title)
	if !ok {
		log.Warn("Job %s vanished during preparation", id)
		return
	}
	log.Info("Job %s: %d chunks", id, len(prepared.Chunks))

	w.translateAll(prepared)
}

// translateAll walks the chunks in document order, resuming after any
// already-translated prefix.
func (w *Worker) translateAll(job *Job) {
	chunks := job.Chunks
	start := len(job.TranslatedChunks)

	contextTail := ""
	if start > 0 {
		contextTail = tail(job.TranslatedChunks[start-1], w.cfg.ContextTailChars)
	}

	for i := start; i < len(chunks); i++ {
		translated, usage, err := w.translateWithRetry(job, i, len(chunks), chunks[i], contextTail)
		if errors.Is(err, errStopping) {
			// Shutdown mid-backoff is not a failure; leave the job
			// non-terminal so startup recovery requeues it.
			log.Info("Job %s interrupted by shutdown on chunk %d/%d", job.ID, i+1, len(chunks))
			return
		}
		if err != nil {
			w.store.MarkFailed(job.ID, fmt.Sprintf("chunk %d/%d failed after %d attempts: %v",
				i+1, len(chunks), w.cfg.MaxRetries, err))
			return
		}

		snapshot, ok := w.store.UpdateProgress(job.ID, translated, usage)
		if !ok {
			log.Warn("Job %s vanished mid-flight, dropping progress", job.ID)
			return
		}
		contextTail = tail(translated, w.cfg.ContextTailChars)
		log.Info("Job %s: chunk %d/%d done", job.ID, i+1, len(chunks))

		job = snapshot
	}

	// A resumed job may already hold every translation.
	if !job.Status.Terminal() && job.ChunkTotal > 0 && job.ChunkDone == job.ChunkTotal {
		updated, ok := w.store.MarkCompleted(job.ID)
		if ok {
			job = updated
		}
	}

	if job.Status == StatusCompleted {
		log.Info("Job %s completed", job.ID)
		w.maybePublish(job)
	}
}

func (w *Worker) translateWithRetry(job *Job, index, total int, chunk, contextTail string) (string, TokenUsage, error) {
	req := TranslateRequest{
		Text:             chunk,
		PrecedingContext: contextTail,
		Domain:           job.Domain,
		SourceLang:       job.SourceLang,
		TargetLang:       job.TargetLang,
		ChunkIndex:       index,
		ChunkTotal:       total,
	}

	var lastErr error
	delay := w.cfg.RetryInitialDelay
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		result, err := w.translate(req)
		if err == nil {
			return result.Text, result.Usage, nil
		}
		lastErr = err
		log.Warn("Job %s: chunk %d/%d attempt %d/%d failed: %v",
			job.ID, index+1, total, attempt, w.cfg.MaxRetries, err)

		if attempt < w.cfg.MaxRetries {
			if !w.sleep(delay) {
				return "", TokenUsage{}, errStopping
			}
			delay *= 2
		}
	}
	return "", TokenUsage{}, lastErr
}

func (w *Worker) translate(req TranslateRequest) (TranslateResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ChunkTimeout)
	defer cancel()

	var result TranslateResult
	err := w.await(ctx, func(ctx context.Context) error {
		r, err := w.translator.Translate(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return TranslateResult{}, Errorf(KindTimeout, "translation timed out after %s", w.cfg.ChunkTimeout)
		}
		return TranslateResult{}, WrapError(KindTranslation, "translation failed", err)
	}
	return result, nil
}

func (w *Worker) fetch(url string) (FetchResult, error) {
	if w.fetcher == nil {
		return FetchResult{}, NewError(KindFetch, "no fetcher configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ChunkTimeout)
	defer cancel()

	var result FetchResult
	err := w.await(ctx, func(ctx context.Context) error {
		r, err := w.fetcher.Fetch(ctx, url)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return FetchResult{}, err
	}
	return result, nil
}

// maybePublish pushes the finished translation downstream. Publish errors
// never touch the job's terminal status.
func (w *Worker) maybePublish(job *Job) {
	if !job.Publish || w.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ChunkTimeout)
	defer cancel()

	var result PublishResult
	err := w.await(ctx, func(ctx context.Context) error {
		r, err := w.publisher.Publish(ctx, PublishRequest{
			Title:     job.DisplayTitle(),
			Content:   job.PartialResult(),
			SourceURL: job.SourceURL,
			Domain:    job.Domain,
		})
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		log.Error("Job %s: publish failed: %v", job.ID, err)
		return
	}
	log.Info("Job %s published: %s", job.ID, result.PageURL)
}

// await runs fn on the bounded executor and waits for it or the deadline.
func (w *Worker) await(ctx context.Context, fn func(context.Context) error) error {
	if err := w.slots.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer w.slots.Release(1)
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleep waits for d, returning false when the worker is stopping.
func (w *Worker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-w.stopCh:
		return false
	}
}

func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
