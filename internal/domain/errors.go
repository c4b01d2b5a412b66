package domain

import "errors"

// Error codes persisted per lesson and reported on task results.
const (
	CodeNoStream           = "NO_STREAM"
	CodeUnsupportedType    = "UNSUPPORTED_TYPE"
	CodeNoSegments         = "NO_SEGMENTS"
	CodeSegmentFetchFailed = "SEGMENT_FETCH_FAILED"
	CodeFFmpegNotFound     = "FFMPEG_NOT_FOUND"
	CodeMergeFailed        = "MERGE_FAILED"
	CodeAuthExpired        = "AUTH_EXPIRED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeDiskFull           = "DISK_FULL"
	CodeDownloadFailed     = "DOWNLOAD_FAILED"
)

// Domain errors.
var (
	// ErrNoStream is returned when no downloadable stream can be determined.
	ErrNoStream = errors.New("no downloadable stream")

	// ErrUnsupportedType is returned for an explicit protocol tag the
	// dispatcher does not support.
	ErrUnsupportedType = errors.New("unsupported protocol type")

	// ErrNoSegments is returned when a media playlist contains no segments.
	ErrNoSegments = errors.New("media playlist has no segments")

	// ErrFFmpegNotFound is returned when the merge tool is missing from PATH.
	ErrFFmpegNotFound = errors.New("ffmpeg not found in PATH")

	// ErrMergeFailed is returned when the merge tool exits non-zero.
	ErrMergeFailed = errors.New("segment merge failed")

	// ErrAuthExpired is returned when a signed URL, token or license has expired.
	ErrAuthExpired = errors.New("authorization expired")

	// ErrRateLimited is returned when rate limited by the provider.
	ErrRateLimited = errors.New("rate limited")

	// ErrDiskFull is returned when the output volume lacks free space.
	ErrDiskFull = errors.New("insufficient disk space")

	// ErrLessonNotFound is returned when a lesson cannot be found in the store.
	ErrLessonNotFound = errors.New("lesson not found")

	// ErrModuleNotFound is returned when a module cannot be found in the store.
	ErrModuleNotFound = errors.New("module not found")
)

// DownloadError wraps an error with the code reported to the state store.
type DownloadError struct {
	Code string
	Err  error
}

func (e *DownloadError) Error() string {
	return e.Code + ": " + e.Err.Error()
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// NewDownloadError creates a coded download error.
func NewDownloadError(code string, err error) *DownloadError {
	return &DownloadError{Code: code, Err: err}
}

// CodeOf extracts the error code from err, mapping known sentinels and
// falling back to DOWNLOAD_FAILED.
func CodeOf(err error) string {
	var de *DownloadError
	if errors.As(err, &de) {
		return de.Code
	}

	switch {
	case errors.Is(err, ErrNoStream):
		return CodeNoStream
	case errors.Is(err, ErrUnsupportedType):
		return CodeUnsupportedType
	case errors.Is(err, ErrNoSegments):
		return CodeNoSegments
	case errors.Is(err, ErrFFmpegNotFound):
		return CodeFFmpegNotFound
	case errors.Is(err, ErrMergeFailed):
		return CodeMergeFailed
	case errors.Is(err, ErrAuthExpired):
		return CodeAuthExpired
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrDiskFull):
		return CodeDiskFull
	default:
		return CodeDownloadFailed
	}
}
