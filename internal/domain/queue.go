package domain

import "time"

// ItemStatus represents the current state of a queue item.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// QueueItem wraps a task while it moves through the download queue.
// An item is exclusively owned by the worker processing it.
type QueueItem struct {
	ID         string
	Task       DownloadTask
	Status     ItemStatus
	Attempts   int
	MaxRetries int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewQueueItem creates a pending item for a task. MaxRetries is the total
// number of attempts the item is allowed, including the first; values below
// one are raised to one.
func NewQueueItem(id string, task DownloadTask, maxRetries int) *QueueItem {
	if maxRetries < 1 {
		maxRetries = 1
	}
	now := time.Now()
	return &QueueItem{
		ID:         id,
		Task:       task,
		Status:     ItemStatusPending,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CanRetry returns true if the item has attempts left.
func (i *QueueItem) CanRetry() bool {
	return i.Attempts < i.MaxRetries
}

// MarkProcessing updates the item status to processing.
func (i *QueueItem) MarkProcessing() {
	i.Status = ItemStatusProcessing
	i.UpdatedAt = time.Now()
}

// MarkCompleted updates the item status to completed.
func (i *QueueItem) MarkCompleted() {
	i.Status = ItemStatusCompleted
	i.UpdatedAt = time.Now()
}

// MarkFailed records a failed attempt. The item goes back to pending while
// attempts remain and to failed once the budget is exhausted.
func (i *QueueItem) MarkFailed(errMsg string) {
	i.Attempts++
	i.LastError = errMsg
	i.UpdatedAt = time.Now()

	if i.CanRetry() {
		i.Status = ItemStatusPending
	} else {
		i.Status = ItemStatusFailed
	}
}
