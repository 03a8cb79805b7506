package jobs

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCreatePendingDefaults(t *testing.T) {
	store := NewStore(30*time.Minute, 100)

	job := store.CreatePending(&Job{Content: "hello world", Domain: "tech"})
	require.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, "tech", job.Domain)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, 0, job.Progress())

	got, ok := store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)
}

func TestStoreCreatePrepared(t *testing.T) {
	store := NewStore(30*time.Minute, 100)

	job := store.Create(&Job{
		Content:          "One. Two. Three.",
		Chunks:           []string{"One.", "Two.", "Three."},
		TranslatedChunks: []string{"译:One."},
		Domain:           "academic",
	})
	require.NotEmpty(t, job.ID)
	assert.Equal(t, StatusInProgress, job.Status)
	assert.Equal(t, 3, job.ChunkTotal)
	assert.Equal(t, 1, job.ChunkDone)
	assert.False(t, job.CreatedAt.IsZero())

	// A caller-supplied status is kept.
	failed := store.Create(&Job{Content: "x", Status: StatusFailed})
	assert.Equal(t, StatusFailed, failed.Status)
}

func TestStoreCreateEvictsWhenFull(t *testing.T) {
	store := NewStore(0, 10)

	base := time.Now().Add(-10 * time.Minute)
	for i := 0; i < 10; i++ {
		store.Restore(&Job{
			ID:        fmt.Sprintf("job-%02d", i),
			Status:    StatusCompleted,
			Content:   "c",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	require.Equal(t, 10, store.Len())

	created := store.Create(&Job{Content: "fresh", Chunks: []string{"fresh"}})

	assert.Equal(t, 10, store.Len())
	_, ok := store.Get("job-00")
	assert.False(t, ok, "oldest job should be evicted")
	_, ok = store.Get(created.ID)
	assert.True(t, ok)
}

func TestStoreGetReturnsSnapshot(t *testing.T) {
	store := NewStore(30*time.Minute, 100)
	job := store.CreatePending(&Job{Content: "original"})

	got, ok := store.Get(job.ID)
	require.True(t, ok)
	got.Content = "mutated"
	got.Chunks = append(got.Chunks, "sneaky")

	again, ok := store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, "original", again.Content)
	assert.Empty(t, again.Chunks)
}

func TestStoreTTLExpiry(t *testing.T) {
	store := NewStore(30*time.Minute, 100)

	stale := &Job{
		ID:        "stale",
		Status:    StatusCompleted,
		Content:   "old",
		CreatedAt: time.Now().Add(-time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	store.Restore(stale)

	_, ok := store.Get("stale")
	assert.False(t, ok, "expired job should be dropped on read")
	assert.Equal(t, 0, store.Len())
}

func TestStoreEvictsOldestTenthWhenFull(t *testing.T) {
	store := NewStore(0, 100)

	base := time.Now().Add(-100 * time.Minute)
	for i := 0; i < 100; i++ {
		store.Restore(&Job{
			ID:        fmt.Sprintf("job-%03d", i),
			Status:    StatusCompleted,
			Content:   "c",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	require.Equal(t, 100, store.Len())

	created := store.CreatePending(&Job{Content: "fresh"})

	// Full store drops the ten oldest before inserting.
	assert.Equal(t, 91, store.Len())
	for i := 0; i < 10; i++ {
		_, ok := store.Get(fmt.Sprintf("job-%03d", i))
		assert.False(t, ok, "job-%03d should be evicted", i)
	}
	_, ok := store.Get("job-010")
	assert.True(t, ok)
	_, ok = store.Get(created.ID)
	assert.True(t, ok)
}

func TestStoreUpdateProgressAutoCompletes(t *testing.T) {
	store := NewStore(0, 100)
	job := store.CreatePending(&Job{Content: "a\n\nb"})

	_, ok := store.SetPrepared(job.ID, "a\n\nb", []string{"a", "b"}, "doc")
	require.True(t, ok)

	mid, ok := store.UpdateProgress(job.ID, "A", TokenUsage{InputTokens: 10, OutputTokens: 5})
	require.True(t, ok)
	assert.Equal(t, StatusInProgress, mid.Status)
	assert.Equal(t, 50, mid.Progress())
	assert.Equal(t, "A", mid.PartialResult())

	done, ok := store.UpdateProgress(job.ID, "B", TokenUsage{InputTokens: 12, OutputTokens: 6})
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress())
	assert.Equal(t, "A\n\nB", done.PartialResult())
	assert.Equal(t, int64(22), done.Usage.InputTokens)
	assert.Equal(t, int64(11), done.Usage.OutputTokens)
}

func TestStoreMarkFailedKeepsPartialResult(t *testing.T) {
	store := NewStore(0, 100)
	job := store.CreatePending(&Job{Content: "a\n\nb\n\nc"})

	_, ok := store.SetPrepared(job.ID, "a\n\nb\n\nc", []string{"a", "b", "c"}, "")
	require.True(t, ok)
	_, ok = store.UpdateProgress(job.ID, "A", TokenUsage{})
	require.True(t, ok)

	failed, ok := store.MarkFailed(job.ID, "chunk 2/3 failed after 3 attempts: boom")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "chunk 2/3")
	assert.Equal(t, "A", failed.PartialResult(), "completed chunks stay readable")
	assert.Equal(t, 33, failed.Progress())
}

func TestStoreResetForRetry(t *testing.T) {
	store := NewStore(0, 100)
	job := store.CreatePending(&Job{Content: "a\n\nb"})
	_, ok := store.SetPrepared(job.ID, "a\n\nb", []string{"a", "b"}, "")
	require.True(t, ok)
	_, ok = store.UpdateProgress(job.ID, "A", TokenUsage{})
	require.True(t, ok)
	_, ok = store.MarkFailed(job.ID, "boom")
	require.True(t, ok)

	reset, err := store.ResetForRetry(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, reset.Status)
	assert.Empty(t, reset.Error)
	assert.Empty(t, reset.TranslatedChunks)
	assert.Equal(t, []string{"a", "b"}, reset.Chunks, "chunk sequence survives retry")
	assert.Equal(t, 0, reset.ChunkDone)
}

func TestStoreResetForRetryRejectsNonFailed(t *testing.T) {
	store := NewStore(0, 100)
	job := store.CreatePending(&Job{Content: "a"})

	_, err := store.ResetForRetry(job.ID)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConflict))

	_, err = store.ResetForRetry("missing")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestStoreTransitionHookFires(t *testing.T) {
	store := NewStore(0, 100)

	var transitions []Status
	store.SetTransitionHook(func(job *Job) {
		transitions = append(transitions, job.Status)
	})

	job := store.CreatePending(&Job{Content: "a"})
	_, ok := store.SetStatus(job.ID, StatusPreparing)
	require.True(t, ok)
	_, ok = store.SetPrepared(job.ID, "a", []string{"a"}, "")
	require.True(t, ok)
	_, ok = store.UpdateProgress(job.ID, "A", TokenUsage{})
	require.True(t, ok)

	assert.Equal(t, []Status{StatusPreparing, StatusInProgress, StatusCompleted}, transitions)
}

func TestStoreListNewestFirst(t *testing.T) {
	store := NewStore(0, 100)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		status := StatusCompleted
		if i%2 == 1 {
			status = StatusFailed
		}
		store.Restore(&Job{
			ID:        fmt.Sprintf("j%d", i),
			Status:    status,
			Content:   "c",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	page, total, hasMore := store.List(0, 3, "")
	require.Len(t, page, 3)
	assert.Equal(t, 5, total)
	assert.True(t, hasMore)
	assert.Equal(t, "j4", page[0].ID)
	assert.Equal(t, "j3", page[1].ID)
	assert.Equal(t, "j2", page[2].ID)

	page, total, hasMore = store.List(3, 3, "")
	require.Len(t, page, 2)
	assert.Equal(t, 5, total)
	assert.False(t, hasMore)

	failed, total, _ := store.List(0, 10, StatusFailed)
	assert.Equal(t, 2, total)
	require.Len(t, failed, 2)
	for _, job := range failed {
		assert.Equal(t, StatusFailed, job.Status)
	}
}

func TestStoreStats(t *testing.T) {
	store := NewStore(0, 100)
	store.Restore(&Job{ID: "a", Status: StatusCompleted, CreatedAt: time.Now(), UpdatedAt: time.Now()})
	store.Restore(&Job{ID: "b", Status: StatusCompleted, CreatedAt: time.Now(), UpdatedAt: time.Now()})
	store.Restore(&Job{ID: "c", Status: StatusFailed, CreatedAt: time.Now(), UpdatedAt: time.Now()})
	store.CreatePending(&Job{Content: "x"})

	stats := store.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[StatusCompleted])
	assert.Equal(t, 1, stats.ByStatus[StatusFailed])
	assert.Equal(t, 1, stats.ByStatus[StatusPending])
}

func TestStoreDelete(t *testing.T) {
	store := NewStore(0, 100)
	job := store.CreatePending(&Job{Content: "x"})

	assert.True(t, store.Delete(job.ID))
	assert.False(t, store.Delete(job.ID))
	_, ok := store.Get(job.ID)
	assert.False(t, ok)
}
