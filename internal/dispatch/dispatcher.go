// Package dispatch routes download tasks to the downloader matching
// their protocol tag.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/coursevault/coursevault/internal/domain"
	"github.com/coursevault/coursevault/internal/downloader"
)

// Dispatcher routes each task to exactly one downloader invocation.
type Dispatcher struct {
	segmented   downloader.Downloader
	progressive downloader.Downloader
}

// New creates a dispatcher over the two downloader families.
func New(segmented, progressive downloader.Downloader) *Dispatcher {
	return &Dispatcher{
		segmented:   segmented,
		progressive: progressive,
	}
}

// Dispatch routes a task by its protocol tag. Unknown tags are sniffed
// from the URL suffix; unsupported explicit tags fail fast without any
// network call.
func (d *Dispatcher) Dispatch(ctx context.Context, task domain.DownloadTask, onProgress downloader.ProgressFunc) domain.Result {
	protocol := task.Protocol
	if protocol == domain.ProtocolUnknown {
		sniffed, err := Sniff(task.SourceURL)
		if err != nil {
			return domain.Fail(err)
		}
		protocol = sniffed
		task.Protocol = sniffed
	}

	switch protocol {
	case domain.ProtocolHLS, domain.ProtocolHLSSplitAV, domain.ProtocolDRM:
		return d.segmented.Download(ctx, task, onProgress)
	case domain.ProtocolFile:
		return d.progressive.Download(ctx, task, onProgress)
	default:
		return domain.Fail(fmt.Errorf("protocol %q: %w", protocol, domain.ErrUnsupportedType))
	}
}

// Sniff classifies a URL with no protocol tag by its suffix. It is a
// pure function: no network calls, no filesystem access.
func Sniff(rawURL string) (domain.Protocol, error) {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	lower := strings.ToLower(u)

	switch {
	case strings.HasSuffix(lower, ".m3u8"):
		return domain.ProtocolHLS, nil
	case strings.HasSuffix(lower, ".mp4"),
		strings.HasSuffix(lower, ".webm"),
		strings.HasSuffix(lower, ".mov"):
		return domain.ProtocolFile, nil
	default:
		return domain.ProtocolUnknown, fmt.Errorf("cannot classify %q: %w", rawURL, domain.ErrNoStream)
	}
}
