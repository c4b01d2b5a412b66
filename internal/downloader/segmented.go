package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/domain"
	"github.com/coursevault/coursevault/pkg/ffmpeg"
)

// HLSDownloader fetches segmented streams: manifest resolution through a
// provider strategy, sequential segment fetches into a per-run temp
// directory, and an ffmpeg merge into the output container.
type HLSDownloader struct {
	client    *httpClient
	license   *LicenseClient
	retry     RetryConfig
	logger    *slog.Logger
	tempRoot  string
	newMerger func() (Merger, error)
}

// NewHLSDownloader creates a segmented-stream downloader. license may be
// nil when no DRM-gated provider is configured.
func NewHLSDownloader(cfg config.DownloadConfig, license *LicenseClient, logger *slog.Logger) *HLSDownloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &HLSDownloader{
		client:   newHTTPClient(cfg),
		license:  license,
		retry:    retryConfigFrom(cfg),
		logger:   logger,
		tempRoot: os.TempDir(),
		newMerger: func() (Merger, error) {
			return ffmpeg.NewMerger()
		},
	}
}

// Download runs the full segmented pipeline for one task. The merge tool
// is checked before any network call, and the destination existing is an
// immediate success with zero requests.
func (d *HLSDownloader) Download(ctx context.Context, task domain.DownloadTask, onProgress ProgressFunc) domain.Result {
	if _, err := os.Stat(task.OutputPath); err == nil {
		d.logger.Info("output already exists, skipping",
			"lesson_id", task.LessonID,
			"path", task.OutputPath,
		)
		report(onProgress, Progress{Phase: PhaseComplete})
		return domain.Succeed(task.OutputPath)
	}

	merger, err := d.newMerger()
	if err != nil {
		return domain.Fail(err)
	}

	strategy, err := d.strategyFor(task.Protocol)
	if err != nil {
		return domain.Fail(err)
	}

	streams, err := strategy.ResolveManifest(ctx, task)
	if err != nil {
		return domain.Fail(err)
	}

	tempDir := filepath.Join(d.tempRoot, "coursevault-"+uuid.NewString())
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return domain.Fail(fmt.Errorf("create temp dir: %w", err))
	}
	defer os.RemoveAll(tempDir)

	total := int64(len(streams.Video.Segments))
	var audioSegs []domain.Segment
	if streams.Audio != nil {
		audioSegs = streams.Audio.Segments
		total += int64(len(audioSegs))
	}

	var done int64
	videoPaths, err := d.fetchSegments(ctx, streams.Video.Segments, streams.Auth, tempDir, "video", func() {
		done++
		report(onProgress, Progress{Phase: PhaseDownloading, Completed: done, Total: total})
	})
	if err != nil {
		return domain.Fail(err)
	}

	var audioPaths []string
	if len(audioSegs) > 0 {
		audioPaths, err = d.fetchSegments(ctx, audioSegs, streams.Auth, tempDir, "audio", func() {
			done++
			report(onProgress, Progress{Phase: PhaseDownloading, Completed: done, Total: total})
		})
		if err != nil {
			return domain.Fail(err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(task.OutputPath), 0755); err != nil {
		return domain.Fail(fmt.Errorf("create output dir: %w", err))
	}

	report(onProgress, Progress{Phase: PhaseMerging, Completed: done, Total: total})

	if len(audioPaths) > 0 {
		err = merger.Mux(ctx, videoPaths, audioPaths, task.OutputPath)
	} else {
		err = merger.Concat(ctx, videoPaths, task.OutputPath)
	}
	if err != nil {
		os.Remove(task.OutputPath)
		return domain.Fail(err)
	}

	report(onProgress, Progress{Phase: PhaseComplete, Completed: total, Total: total})
	return domain.Succeed(task.OutputPath)
}

// strategyFor selects the provider strategy for a protocol tag.
func (d *HLSDownloader) strategyFor(p domain.Protocol) (Strategy, error) {
	switch p {
	case domain.ProtocolHLS:
		return &genericStrategy{client: d.client}, nil
	case domain.ProtocolHLSSplitAV:
		return &splitAVStrategy{client: d.client}, nil
	case domain.ProtocolDRM:
		if d.license == nil {
			return nil, fmt.Errorf("drm task without license client: %w", domain.ErrUnsupportedType)
		}
		return &drmStrategy{client: d.client, license: d.license}, nil
	default:
		return nil, fmt.Errorf("protocol %q: %w", p, domain.ErrUnsupportedType)
	}
}

// fetchSegments downloads one segment list sequentially into dir,
// retrying transient failures per segment. Requests within a task never
// fan out; total in-flight requests stay bounded by the queue's
// worker count.
func (d *HLSDownloader) fetchSegments(
	ctx context.Context,
	segments []domain.Segment,
	auth authContext,
	dir, prefix string,
	onSegment func(),
) ([]string, error) {
	paths := make([]string, 0, len(segments))

	for _, seg := range segments {
		path := filepath.Join(dir, fmt.Sprintf("%s_%05d.ts", prefix, seg.Index))

		_, err := RetryWithCheck(ctx, d.retry, func() (struct{}, error) {
			return struct{}{}, d.fetchSegment(ctx, seg.URL, path, auth)
		}, isRetryableError)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", seg.Index, err)
		}

		paths = append(paths, path)
		onSegment()
	}

	return paths, nil
}

func (d *HLSDownloader) fetchSegment(ctx context.Context, url, path string, auth authContext) error {
	resp, err := d.client.getStream(ctx, url, auth)
	if err != nil {
		if isNonRetryable(err) {
			return err
		}
		return domain.NewDownloadError(domain.CodeSegmentFetchFailed, err)
	}
	defer resp.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create segment file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return domain.NewDownloadError(domain.CodeSegmentFetchFailed, err)
	}

	return f.Close()
}
