package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/longdoc-translator/internal/config"
	"github.com/MimeLyc/longdoc-translator/internal/jobs"
	"github.com/MimeLyc/longdoc-translator/internal/persistence"
)

type echoTranslator struct{}

func (echoTranslator) Translate(ctx context.Context, req jobs.TranslateRequest) (jobs.TranslateResult, error) {
	return jobs.TranslateResult{
		Text:  "译:" + req.Text,
		Usage: jobs.TokenUsage{InputTokens: 5, OutputTokens: 5},
	}, nil
}

func testConfig() config.Config {
	return config.Config{
		Pipeline: config.PipelineConfig{
			SourceLanguage: "en",
			TargetLanguage: language.Chinese,
		},
	}
}

type fixture struct {
	svc    *Service
	store  *jobs.Store
	worker *jobs.Worker
	dir    string
}

func newFixture(t *testing.T, start bool) fixture {
	t.Helper()
	dir := t.TempDir()
	store := jobs.NewStore(0, 100)
	snap, err := persistence.New(dir, store)
	require.NoError(t, err)

	split := func(text string) []string { return []string{text} }
	worker := jobs.NewWorker(store, split, nil, echoTranslator{}, nil, jobs.WorkerConfig{
		MaxRetries:        3,
		RetryInitialDelay: time.Millisecond,
		ChunkTimeout:      time.Second,
	})
	if start {
		worker.Start()
		t.Cleanup(worker.Stop)
	}

	return fixture{
		svc:    New(testConfig(), store, worker, snap),
		store:  store,
		worker: worker,
		dir:    dir,
	}
}

func waitCompleted(t *testing.T, f fixture, id string) *jobs.Job {
	t.Helper()
	var job *jobs.Job
	require.Eventually(t, func() bool {
		got, err := f.svc.Progress(id)
		if err != nil {
			return false
		}
		job = got
		return got.Status == jobs.StatusCompleted
	}, 3*time.Second, 5*time.Millisecond)
	return job
}

func TestSubmitFastRequiresContentOrURL(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.SubmitFast(SubmitRequest{})
	require.Error(t, err)
	assert.True(t, jobs.IsKind(err, jobs.KindValidation))

	_, err = f.svc.SubmitFast(SubmitRequest{Content: "   "})
	require.Error(t, err)
	assert.True(t, jobs.IsKind(err, jobs.KindValidation))
}

func TestSubmitFastRejectsUnknownDomain(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.SubmitFast(SubmitRequest{Content: "text", Domain: "cooking"})
	require.Error(t, err)
	assert.True(t, jobs.IsKind(err, jobs.KindValidation))
}

func TestSubmitFastDefaults(t *testing.T) {
	f := newFixture(t, false)

	job, err := f.svc.SubmitFast(SubmitRequest{Content: "This is an English sentence about software engineering practices."})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, job.Status)
	assert.Equal(t, "tech", job.Domain)
	assert.Equal(t, "zh", job.TargetLang)
	assert.Equal(t, "en", job.SourceLang)
	assert.Equal(t, 1, f.worker.QueueDepth())
}

func TestSubmitFastDetectsChineseSource(t *testing.T) {
	f := newFixture(t, false)

	job, err := f.svc.SubmitFast(SubmitRequest{
		Content:    "这是一段用来测试语言检测功能的中文文本，内容足够长以便检测可靠。",
		TargetLang: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, "zh", job.SourceLang)
	assert.Equal(t, "en", job.TargetLang)
}

func TestSubmitURLKeepsSourceReference(t *testing.T) {
	f := newFixture(t, false)

	job, err := f.svc.SubmitFast(SubmitRequest{URL: "https://example.com/post"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/post", job.URL)
	assert.Equal(t, "https://example.com/post", job.SourceURL)
	assert.Equal(t, "en", job.SourceLang, "no content to sample, config default applies")
}

func TestSubmitRunsToCompletionAndPersists(t *testing.T) {
	f := newFixture(t, true)

	job, err := f.svc.SubmitFast(SubmitRequest{Content: "Hello."})
	require.NoError(t, err)
	done := waitCompleted(t, f, job.ID)
	assert.Equal(t, 100, done.Progress())

	text, got, err := f.svc.Result(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "译:Hello.", text)
	assert.Equal(t, jobs.StatusCompleted, got.Status)

	// The transition hook writes both files.
	_, err = os.Stat(filepath.Join(f.dir, "tasks.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(f.dir, "results", job.ID+".txt"))
	require.NoError(t, err)
}

func TestResultBeforeCompletion(t *testing.T) {
	f := newFixture(t, false)

	job, err := f.svc.SubmitFast(SubmitRequest{Content: "pending text"})
	require.NoError(t, err)

	_, _, err = f.svc.Result(job.ID)
	require.Error(t, err)
	assert.True(t, jobs.IsKind(err, jobs.KindConflict))

	_, _, err = f.svc.Result("missing")
	require.Error(t, err)
	assert.True(t, jobs.IsKind(err, jobs.KindNotFound))
}

func TestRetryFailedJob(t *testing.T) {
	f := newFixture(t, false)

	job, err := f.svc.SubmitFast(SubmitRequest{Content: "text"})
	require.NoError(t, err)
	require.NoError(t, f.worker.Cancel(job.ID))

	failed, err := f.svc.Progress(job.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusFailed, failed.Status)

	retried, err := f.svc.Retry(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, retried.Status)
	assert.Empty(t, retried.Error)
}

func TestRetryRejectsNonFailed(t *testing.T) {
	f := newFixture(t, false)

	job, err := f.svc.SubmitFast(SubmitRequest{Content: "text"})
	require.NoError(t, err)

	_, err = f.svc.Retry(job.ID)
	require.Error(t, err)
	assert.True(t, jobs.IsKind(err, jobs.KindConflict))
}

func TestCancelPendingJob(t *testing.T) {
	f := newFixture(t, false)

	job, err := f.svc.SubmitFast(SubmitRequest{Content: "text"})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, cancelled.Status)
	assert.Contains(t, cancelled.Error, "cancelled")

	_, err = f.svc.Cancel("missing")
	require.Error(t, err)
	assert.True(t, jobs.IsKind(err, jobs.KindNotFound))
}

func TestDeleteRemovesJobAndResult(t *testing.T) {
	f := newFixture(t, true)

	job, err := f.svc.SubmitFast(SubmitRequest{Content: "Hello."})
	require.NoError(t, err)
	waitCompleted(t, f, job.ID)

	require.NoError(t, f.svc.Delete(job.ID))

	_, err = f.svc.Progress(job.ID)
	require.Error(t, err)
	assert.True(t, jobs.IsKind(err, jobs.KindNotFound))

	_, statErr := os.Stat(filepath.Join(f.dir, "results", job.ID+".txt"))
	assert.True(t, os.IsNotExist(statErr))

	err = f.svc.Delete(job.ID)
	require.Error(t, err)
	assert.True(t, jobs.IsKind(err, jobs.KindNotFound))
}

func TestListValidatesStatusFilter(t *testing.T) {
	f := newFixture(t, false)

	_, _, _, err := f.svc.List(0, 10, "bogus")
	require.Error(t, err)
	assert.True(t, jobs.IsKind(err, jobs.KindValidation))

	_, err = f.svc.SubmitFast(SubmitRequest{Content: "one"})
	require.NoError(t, err)
	_, err = f.svc.SubmitFast(SubmitRequest{Content: "two"})
	require.NoError(t, err)

	page, total, hasMore, err := f.svc.List(0, 1, "pending")
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Equal(t, 2, total)
	assert.True(t, hasMore)
}

func TestStats(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.SubmitFast(SubmitRequest{Content: "one"})
	require.NoError(t, err)
	_, err = f.svc.SubmitFast(SubmitRequest{Content: "two"})
	require.NoError(t, err)

	stats := f.svc.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[jobs.StatusPending])
	assert.Equal(t, 2, stats.QueueDepth)
}
