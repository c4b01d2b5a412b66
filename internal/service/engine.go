// Package service orchestrates download runs: disk preflight, queue
// processing and sync-state bookkeeping around the dispatcher.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/domain"
	"github.com/coursevault/coursevault/internal/downloader"
	"github.com/coursevault/coursevault/internal/queue"
)

// TaskDispatcher routes one task to the right downloader.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, task domain.DownloadTask, onProgress downloader.ProgressFunc) domain.Result
}

// StateStore records lesson outcomes for a course.
type StateStore interface {
	MarkDownloaded(ctx context.Context, id int64, fileSize int64) error
	MarkError(ctx context.Context, id int64, message, code string) error
}

// Engine runs a batch of download tasks for one course.
type Engine struct {
	dispatcher TaskDispatcher
	store      StateStore
	storageCfg config.StorageConfig
	workerCfg  config.WorkerConfig
	logger     *slog.Logger
}

// NewEngine creates a download engine.
func NewEngine(
	dispatcher TaskDispatcher,
	store StateStore,
	storageCfg config.StorageConfig,
	workerCfg config.WorkerConfig,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		dispatcher: dispatcher,
		store:      store,
		storageCfg: storageCfg,
		workerCfg:  workerCfg,
		logger:     logger,
	}
}

// Run processes all tasks to a terminal state and returns the aggregate.
// The run fails up front, before any download starts, when the output
// volume has less free space than the configured minimum.
func (e *Engine) Run(ctx context.Context, tasks []domain.DownloadTask) (domain.RunStats, error) {
	if len(tasks) == 0 {
		return domain.RunStats{}, nil
	}

	if err := e.checkDiskSpace(); err != nil {
		return domain.RunStats{}, err
	}

	q := queue.New(queue.Config{
		Concurrency: e.workerCfg.Concurrency,
		MaxRetries:  e.workerCfg.MaxRetries,
	}, e.logger)
	q.AddAll(tasks)
	q.SetProgressFunc(func(completed, total int, currentID string) {
		e.logger.Info("run progress",
			"completed", completed,
			"total", total,
			"item_id", currentID,
		)
	})

	stats := q.Process(ctx, e.handle)

	// Only terminal failures reach the state store; retried attempts are
	// the queue's business.
	for _, itemErr := range stats.Errors {
		if itemErr.LessonID == 0 {
			continue
		}
		if err := e.store.MarkError(ctx, itemErr.LessonID, itemErr.Message, itemErr.Code); err != nil {
			e.logger.Warn("record lesson error",
				"lesson_id", itemErr.LessonID,
				"error", err,
			)
		}
	}

	e.logger.Info("run finished",
		"completed", stats.Completed,
		"failed", stats.Failed,
	)
	return stats, nil
}

// handle runs one attempt and, on success, verifies the output file on
// disk before recording the download.
func (e *Engine) handle(ctx context.Context, task domain.DownloadTask) domain.Result {
	res := e.dispatcher.Dispatch(ctx, task, nil)
	if !res.Success {
		return res
	}

	info, err := os.Stat(res.OutputPath)
	if err != nil {
		return domain.Fail(fmt.Errorf("verify output %s: %w", res.OutputPath, err))
	}
	if info.Size() == 0 {
		return domain.Fail(fmt.Errorf("verify output %s: file is empty", res.OutputPath))
	}

	if task.LessonID != 0 {
		if err := e.store.MarkDownloaded(ctx, task.LessonID, info.Size()); err != nil {
			// A resume shortcut on an already-downloaded lesson is not a
			// failure worth re-running the download for.
			if errors.Is(err, domain.ErrLessonNotFound) {
				e.logger.Debug("lesson already recorded", "lesson_id", task.LessonID)
			} else {
				e.logger.Warn("record download",
					"lesson_id", task.LessonID,
					"error", err,
				)
			}
		}
	}
	return res
}

func (e *Engine) checkDiskSpace() error {
	if e.storageCfg.MinFreeBytes <= 0 {
		return nil
	}
	if err := os.MkdirAll(e.storageCfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	free := getFreeDiskSpace(e.storageCfg.OutputDir)
	if free < e.storageCfg.MinFreeBytes {
		return domain.NewDownloadError(domain.CodeDiskFull,
			fmt.Errorf("%w: %d bytes free on %s, need %d",
				domain.ErrDiskFull, free, e.storageCfg.OutputDir, e.storageCfg.MinFreeBytes))
	}
	return nil
}
