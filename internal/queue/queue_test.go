package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coursevault/coursevault/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeTasks(n int) []domain.DownloadTask {
	tasks := make([]domain.DownloadTask, n)
	for i := range tasks {
		tasks[i] = domain.DownloadTask{
			LessonID:   int64(i + 1),
			SourceURL:  fmt.Sprintf("https://x/%d.mp4", i+1),
			OutputPath: fmt.Sprintf("/out/%d.mp4", i+1),
		}
	}
	return tasks
}

func TestProcess_AllSucceed(t *testing.T) {
	q := New(Config{Concurrency: 2, MaxRetries: 3}, testLogger())
	q.AddAll(makeTasks(5))

	var handled atomic.Int32
	stats := q.Process(context.Background(), func(ctx context.Context, task domain.DownloadTask) domain.Result {
		handled.Add(1)
		return domain.Succeed(task.OutputPath)
	})

	if stats.Completed != 5 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 5 completed / 0 failed", stats)
	}
	if handled.Load() != 5 {
		t.Errorf("handler calls = %d, want 5", handled.Load())
	}
	if len(stats.Errors) != 0 {
		t.Errorf("errors = %v, want none", stats.Errors)
	}
}

func TestProcess_FailTwiceThenSucceed(t *testing.T) {
	// Five tasks, concurrency 2, retry budget 3. The handler fails
	// twice then succeeds for task #3 only; the aggregate must still
	// be a clean 5/0.
	q := New(Config{Concurrency: 2, MaxRetries: 3}, testLogger())
	q.AddAll(makeTasks(5))

	var mu sync.Mutex
	failures := map[int64]int{}

	stats := q.Process(context.Background(), func(ctx context.Context, task domain.DownloadTask) domain.Result {
		if task.LessonID == 3 {
			mu.Lock()
			failures[3]++
			n := failures[3]
			mu.Unlock()
			if n <= 2 {
				return domain.Fail(errors.New("transient"))
			}
		}
		return domain.Succeed(task.OutputPath)
	})

	if stats.Completed != 5 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 5 completed / 0 failed", stats)
	}
	if failures[3] != 3 {
		t.Errorf("task 3 attempts = %d, want 3", failures[3])
	}
}

func TestProcess_RetryBudgetExhausted(t *testing.T) {
	q := New(Config{Concurrency: 1, MaxRetries: 2}, testLogger())
	q.AddAll(makeTasks(1))

	var attempts atomic.Int32
	stats := q.Process(context.Background(), func(ctx context.Context, task domain.DownloadTask) domain.Result {
		attempts.Add(1)
		return domain.Fail(domain.NewDownloadError(domain.CodeSegmentFetchFailed, errors.New("503")))
	})

	// MaxRetries counts total attempts including the first.
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
	if stats.Completed != 0 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 0 completed / 1 failed", stats)
	}
	if len(stats.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(stats.Errors))
	}
	if stats.Errors[0].Code != domain.CodeSegmentFetchFailed {
		t.Errorf("error code = %q, want %q", stats.Errors[0].Code, domain.CodeSegmentFetchFailed)
	}
	if stats.Errors[0].LessonID != 1 {
		t.Errorf("error lesson = %d, want 1", stats.Errors[0].LessonID)
	}
}

func TestProcess_ConcurrencyBound(t *testing.T) {
	const concurrency = 3

	q := New(Config{Concurrency: concurrency, MaxRetries: 1}, testLogger())
	q.AddAll(makeTasks(12))

	var inFlight, peak atomic.Int32
	stats := q.Process(context.Background(), func(ctx context.Context, task domain.DownloadTask) domain.Result {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return domain.Succeed(task.OutputPath)
	})

	if stats.Completed != 12 {
		t.Errorf("completed = %d, want 12", stats.Completed)
	}
	if got := peak.Load(); got > concurrency {
		t.Errorf("peak in-flight handlers = %d, want <= %d", got, concurrency)
	}
}

func TestProcess_AllItemsTerminal(t *testing.T) {
	q := New(Config{Concurrency: 2, MaxRetries: 2}, testLogger())
	q.AddAll(makeTasks(6))

	q.Process(context.Background(), func(ctx context.Context, task domain.DownloadTask) domain.Result {
		if task.LessonID%2 == 0 {
			return domain.Fail(errors.New("even lessons fail"))
		}
		return domain.Succeed(task.OutputPath)
	})

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.Status != domain.ItemStatusCompleted && item.Status != domain.ItemStatusFailed {
			t.Errorf("item %s status = %v, want terminal", item.ID, item.Status)
		}
	}
}

func TestProcess_PanicRecovered(t *testing.T) {
	q := New(Config{Concurrency: 1, MaxRetries: 1}, testLogger())
	q.AddAll(makeTasks(2))

	stats := q.Process(context.Background(), func(ctx context.Context, task domain.DownloadTask) domain.Result {
		if task.LessonID == 1 {
			panic("handler exploded")
		}
		return domain.Succeed(task.OutputPath)
	})

	if stats.Completed != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 completed / 1 failed", stats)
	}
}

func TestProcess_ProgressCallback(t *testing.T) {
	q := New(Config{Concurrency: 1, MaxRetries: 1}, testLogger())
	q.AddAll(makeTasks(3))

	var mu sync.Mutex
	var finals []int
	q.SetProgressFunc(func(completed, total int, currentID string) {
		mu.Lock()
		defer mu.Unlock()
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		finals = append(finals, completed)
	})

	q.Process(context.Background(), func(ctx context.Context, task domain.DownloadTask) domain.Result {
		return domain.Succeed(task.OutputPath)
	})

	mu.Lock()
	defer mu.Unlock()
	if len(finals) == 0 {
		t.Fatal("progress callback never fired")
	}
	if last := finals[len(finals)-1]; last != 3 {
		t.Errorf("final completed = %d, want 3", last)
	}
}

func TestProcess_CancelledContextFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := New(Config{Concurrency: 2, MaxRetries: 3}, testLogger())
	q.AddAll(makeTasks(4))

	var handled atomic.Int32
	stats := q.Process(ctx, func(ctx context.Context, task domain.DownloadTask) domain.Result {
		handled.Add(1)
		return domain.Succeed(task.OutputPath)
	})

	if handled.Load() != 0 {
		t.Errorf("handler calls = %d, want 0 after cancellation", handled.Load())
	}
	if stats.Failed != 4 {
		t.Errorf("failed = %d, want 4", stats.Failed)
	}
}

func TestProcess_Empty(t *testing.T) {
	q := New(Config{Concurrency: 2, MaxRetries: 1}, testLogger())
	stats := q.Process(context.Background(), func(ctx context.Context, task domain.DownloadTask) domain.Result {
		t.Error("handler should not run")
		return domain.Succeed("")
	})
	if stats.Completed != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want zero", stats)
	}
}
