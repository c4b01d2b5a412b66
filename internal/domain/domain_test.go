package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Protocol
	}{
		{"hls", "hls", ProtocolHLS},
		{"split av", "hls-splitav", ProtocolHLSSplitAV},
		{"drm", "drm", ProtocolDRM},
		{"file", "file", ProtocolFile},
		{"unknown tag", "dash", ProtocolUnknown},
		{"empty", "", ProtocolUnknown},
		{"explicit unknown", "unknown", ProtocolUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseProtocol(tt.raw); got != tt.want {
				t.Errorf("ParseProtocol(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestQueueItem_RetryBudget(t *testing.T) {
	item := NewQueueItem("item-1", DownloadTask{LessonID: 1}, 3)

	// MaxRetries counts total attempts including the first.
	item.MarkFailed("boom")
	if item.Status != ItemStatusPending {
		t.Errorf("status after 1st failure = %v, want pending", item.Status)
	}
	item.MarkFailed("boom")
	if item.Status != ItemStatusPending {
		t.Errorf("status after 2nd failure = %v, want pending", item.Status)
	}
	item.MarkFailed("boom")
	if item.Status != ItemStatusFailed {
		t.Errorf("status after 3rd failure = %v, want failed", item.Status)
	}
	if item.CanRetry() {
		t.Error("CanRetry() = true after budget exhausted")
	}
	if item.LastError != "boom" {
		t.Errorf("LastError = %q, want %q", item.LastError, "boom")
	}
}

func TestNewQueueItem_MinimumOneAttempt(t *testing.T) {
	item := NewQueueItem("item-1", DownloadTask{}, 0)
	if item.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", item.MaxRetries)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no stream", ErrNoStream, CodeNoStream},
		{"unsupported", ErrUnsupportedType, CodeUnsupportedType},
		{"no segments", ErrNoSegments, CodeNoSegments},
		{"ffmpeg missing", ErrFFmpegNotFound, CodeFFmpegNotFound},
		{"merge failed", ErrMergeFailed, CodeMergeFailed},
		{"auth expired", ErrAuthExpired, CodeAuthExpired},
		{"rate limited", ErrRateLimited, CodeRateLimited},
		{"disk full", ErrDiskFull, CodeDiskFull},
		{"plain error", errors.New("whatever"), CodeDownloadFailed},
		{"wrapped sentinel", fmt.Errorf("fetch segment: %w", ErrAuthExpired), CodeAuthExpired},
		{"coded error", NewDownloadError(CodeSegmentFetchFailed, errors.New("503")), CodeSegmentFetchFailed},
		{"wrapped coded error", fmt.Errorf("attempt 2: %w", NewDownloadError(CodeMergeFailed, ErrMergeFailed)), CodeMergeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFail_DerivesCode(t *testing.T) {
	res := Fail(ErrNoSegments)
	if res.Success {
		t.Error("Fail result should not be successful")
	}
	if res.Code != CodeNoSegments {
		t.Errorf("Code = %q, want %q", res.Code, CodeNoSegments)
	}
}
