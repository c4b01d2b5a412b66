// Package queue drives download tasks through a bounded worker pool
// with a per-item retry budget.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/coursevault/coursevault/internal/domain"
)

// Handler processes one task attempt. Execution is at-least-once per
// item, so handlers must be idempotent.
type Handler func(ctx context.Context, task domain.DownloadTask) domain.Result

// ProgressFunc fires after every item state transition.
type ProgressFunc func(completed, total int, currentID string)

// Config holds queue configuration.
type Config struct {
	// Concurrency is the fixed worker pool size.
	Concurrency int

	// MaxRetries is the total number of attempts per item, including
	// the first. Values below one are raised to one.
	MaxRetries int
}

// Queue is a bounded-concurrency download queue. Items are added up
// front and processed by a single Process call; the queue is not reused
// across runs.
type Queue struct {
	concurrency int
	maxRetries  int
	logger      *slog.Logger
	onProgress  ProgressFunc

	mu    sync.Mutex
	items []*domain.QueueItem
	stats domain.RunStats
	done  int
}

// New creates a queue.
func New(cfg Config, logger *slog.Logger) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		concurrency: cfg.Concurrency,
		maxRetries:  cfg.MaxRetries,
		logger:      logger,
	}
}

// SetProgressFunc installs the progress callback. Must be called before
// Process.
func (q *Queue) SetProgressFunc(fn ProgressFunc) {
	q.onProgress = fn
}

// Add enqueues one task and returns its item.
func (q *Queue) Add(task domain.DownloadTask) *domain.QueueItem {
	item := domain.NewQueueItem(uuid.NewString(), task, q.maxRetries)
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	return item
}

// AddAll enqueues a batch of tasks.
func (q *Queue) AddAll(tasks []domain.DownloadTask) {
	for _, t := range tasks {
		q.Add(t)
	}
}

// Len returns the number of enqueued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Process runs all enqueued items to a terminal state and returns the
// aggregate. At most Concurrency handlers run at any instant.
// Cancellation is cooperative: a cancelled context fails items at task
// boundaries while each worker's current attempt drains normally.
func (q *Queue) Process(ctx context.Context, handler Handler) domain.RunStats {
	q.mu.Lock()
	items := make([]*domain.QueueItem, len(q.items))
	copy(items, q.items)
	q.mu.Unlock()

	if len(items) == 0 {
		return domain.RunStats{}
	}

	// Capacity equals the item count: an item being retried has already
	// been consumed from the channel, so re-enqueueing never blocks.
	work := make(chan *domain.QueueItem, len(items))
	for _, item := range items {
		work <- item
	}

	var itemsWG sync.WaitGroup
	itemsWG.Add(len(items))
	go func() {
		itemsWG.Wait()
		close(work)
	}()

	var workersWG sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		workersWG.Add(1)
		go func(workerID int) {
			defer workersWG.Done()
			q.worker(ctx, workerID, handler, work, &itemsWG)
		}(i)
	}
	workersWG.Wait()

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

func (q *Queue) worker(ctx context.Context, id int, handler Handler, work chan *domain.QueueItem, itemsWG *sync.WaitGroup) {
	logger := q.logger.With("worker_id", id)

	for item := range work {
		if ctx.Err() != nil {
			q.mu.Lock()
			item.Attempts = item.MaxRetries - 1
			item.MarkFailed(ctx.Err().Error())
			q.recordFailureLocked(item, ctx.Err())
			q.mu.Unlock()
			q.reportProgress(item.ID)
			itemsWG.Done()
			continue
		}

		q.attempt(ctx, logger, handler, item, work, itemsWG)
	}
}

func (q *Queue) attempt(ctx context.Context, logger *slog.Logger, handler Handler, item *domain.QueueItem, work chan *domain.QueueItem, itemsWG *sync.WaitGroup) {
	q.mu.Lock()
	item.MarkProcessing()
	q.mu.Unlock()
	q.reportProgress(item.ID)

	res := q.safeHandle(ctx, handler, item.Task)

	q.mu.Lock()
	if res.Success {
		item.MarkCompleted()
		q.stats.Completed++
		q.done++
		q.mu.Unlock()
		q.reportProgress(item.ID)
		itemsWG.Done()
		return
	}

	item.MarkFailed(res.Err.Error())
	if item.CanRetry() {
		q.mu.Unlock()
		logger.Warn("task failed, will retry",
			"item_id", item.ID,
			"lesson_id", item.Task.LessonID,
			"attempt", item.Attempts,
			"max_retries", item.MaxRetries,
			"error", res.Err,
		)
		q.reportProgress(item.ID)
		work <- item
		return
	}

	q.recordFailureLocked(item, res.Err)
	q.mu.Unlock()
	logger.Error("task failed permanently",
		"item_id", item.ID,
		"lesson_id", item.Task.LessonID,
		"attempts", item.Attempts,
		"error", res.Err,
	)
	q.reportProgress(item.ID)
	itemsWG.Done()
}

// safeHandle converts handler panics into structured failures.
func (q *Queue) safeHandle(ctx context.Context, handler Handler, task domain.DownloadTask) (res domain.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = domain.Fail(fmt.Errorf("handler panic: %v", r))
		}
	}()
	res = handler(ctx, task)
	if !res.Success && res.Err == nil {
		res.Err = fmt.Errorf("handler reported failure without error")
	}
	return res
}

// recordFailureLocked registers a terminal failure. Caller holds q.mu.
func (q *Queue) recordFailureLocked(item *domain.QueueItem, err error) {
	q.stats.Failed++
	q.done++
	q.stats.Errors = append(q.stats.Errors, domain.ItemError{
		ItemID:   item.ID,
		LessonID: item.Task.LessonID,
		Message:  err.Error(),
		Code:     domain.CodeOf(err),
	})
}

func (q *Queue) reportProgress(currentID string) {
	if q.onProgress == nil {
		return
	}
	q.mu.Lock()
	done, total := q.done, len(q.items)
	q.mu.Unlock()
	q.onProgress(done, total, currentID)
}
