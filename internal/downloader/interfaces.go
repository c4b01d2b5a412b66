package downloader

import (
	"context"

	"github.com/coursevault/coursevault/internal/domain"
)

// Download phases reported through ProgressFunc.
const (
	PhaseDownloading = "downloading"
	PhaseMerging     = "merging"
	PhaseComplete    = "complete"
)

// Progress reports per-task download progress. During the downloading
// phase Completed/Total count segments for segmented streams and bytes
// for progressive files; Total is zero when unknown.
type Progress struct {
	Phase     string
	Completed int64
	Total     int64
}

// ProgressFunc receives progress updates. May be nil.
type ProgressFunc func(Progress)

// Downloader fetches one task's video to its output path. Every code
// path returns a structured result; errors never escape the boundary.
type Downloader interface {
	Download(ctx context.Context, task domain.DownloadTask, onProgress ProgressFunc) domain.Result
}

// Merger merges fetched segments into the final container file.
type Merger interface {
	// Concat concatenates video-only segments without re-encoding.
	Concat(ctx context.Context, segmentPaths []string, outputPath string) error

	// Mux merges separate video and audio segment sets (video copied,
	// audio re-encoded).
	Mux(ctx context.Context, videoPaths, audioPaths []string, outputPath string) error
}

func report(onProgress ProgressFunc, p Progress) {
	if onProgress != nil {
		onProgress(p)
	}
}
