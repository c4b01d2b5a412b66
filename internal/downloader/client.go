package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/domain"
)

// authContext is the per-task auth material applied to every request.
type authContext struct {
	Cookies string
	Referer string
	Bearer  string
}

func authFromTask(task domain.DownloadTask) authContext {
	return authContext{
		Cookies: task.Cookies,
		Referer: task.Referer,
		Bearer:  task.AuthToken,
	}
}

// httpClient wraps the two HTTP clients used by all downloaders: a short
// client with an overall timeout for manifests and probes, and a stream
// client without one for large bodies.
type httpClient struct {
	short       *http.Client
	stream      *http.Client
	userAgent   string
	readTimeout time.Duration
}

func newHTTPClient(cfg config.DownloadConfig) *httpClient {
	streamTransport := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &httpClient{
		short: &http.Client{
			Timeout: cfg.Timeout,
		},
		stream: &http.Client{
			Transport: streamTransport,
			// No Timeout: stalls are caught per read instead.
		},
		userAgent:   cfg.UserAgent,
		readTimeout: cfg.ReadTimeout,
	}
}

func (c *httpClient) newRequest(ctx context.Context, rawURL string, auth authContext) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	if auth.Cookies != "" {
		req.Header.Set("Cookie", auth.Cookies)
	}
	if auth.Referer != "" {
		req.Header.Set("Referer", auth.Referer)
	}
	if auth.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+auth.Bearer)
	}

	return req, nil
}

// getStream issues an authenticated GET on the streaming client. The
// caller owns the response body on success.
func (c *httpClient) getStream(ctx context.Context, rawURL string, auth authContext) (*http.Response, error) {
	req, err := c.newRequest(ctx, rawURL, auth)
	if err != nil {
		return nil, err
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if err := statusError(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}

	resp.Body = newStallReader(resp.Body, c.readTimeout)
	return resp, nil
}

// stallReader wraps a streaming response body and fails the read when
// no data has arrived for the read timeout, so a silently stalled
// connection cannot pin its worker indefinitely.
type stallReader struct {
	reader   io.ReadCloser
	timeout  time.Duration
	lastRead time.Time
}

func newStallReader(r io.ReadCloser, timeout time.Duration) io.ReadCloser {
	if timeout <= 0 {
		return r
	}
	return &stallReader{reader: r, timeout: timeout, lastRead: time.Now()}
}

func (s *stallReader) Read(buf []byte) (int, error) {
	n, err := s.reader.Read(buf)
	if n > 0 {
		s.lastRead = time.Now()
	}
	if err == nil && time.Since(s.lastRead) > s.timeout {
		return n, fmt.Errorf("download stalled: no data received for %v", s.timeout)
	}
	return n, err
}

func (s *stallReader) Close() error {
	return s.reader.Close()
}

// fetch retrieves a small body (manifest, license response) on the short
// client, returning the bytes and the final URL after redirects.
func (c *httpClient) fetch(ctx context.Context, rawURL string, auth authContext) ([]byte, *url.URL, error) {
	req, err := c.newRequest(ctx, rawURL, auth)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.short.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}

	return body, resp.Request.URL, nil
}

// statusError maps HTTP status codes to domain errors.
func statusError(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.ErrAuthExpired
	case code == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case code < 200 || code > 299:
		return fmt.Errorf("unexpected status code: %d", code)
	default:
		return nil
	}
}

// isRetryableError decides whether a failed request is worth retrying
// within the same task attempt. Authorization and tool errors are not:
// retrying them wastes the budget without any chance of success.
func isRetryableError(err error) bool {
	switch {
	case err == nil:
		return false
	case isNonRetryable(err):
		return false
	default:
		return true
	}
}

func isNonRetryable(err error) bool {
	for _, sentinel := range []error{
		domain.ErrAuthExpired,
		domain.ErrFFmpegNotFound,
		domain.ErrMergeFailed,
		domain.ErrNoSegments,
		domain.ErrUnsupportedType,
		domain.ErrNoStream,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
