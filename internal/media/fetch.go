package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// MaxRedirects bounds how many redirects a download may follow.
	MaxRedirects = 5
	// DefaultFetchTimeout applies when the fetcher is built without a timeout.
	DefaultFetchTimeout = 3 * time.Minute

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Fetcher streams remote payloads into local sinks.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher. A nil client gets a default transport with the
// redirect bound installed.
func NewFetcher(log *slog.Logger, client *http.Client, timeout time.Duration) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	bounded := *client
	bounded.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", MaxRedirects)
		}
		return nil
	}
	return &Fetcher{
		client:  &bounded,
		timeout: timeout,
		logger:  log.With(slog.String("service", "fetcher")),
	}
}

// Fetch copies the body at rawURL into sink and returns the number of bytes
// written. Status >= 400 yields *RemoteRejectedError, an expired deadline
// ErrFetchTimeout and a zero-length body ErrEmptyPayload.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, sink io.Writer) (int64, string, error) {
	if !IsFetchableURL(rawURL) {
		return 0, "", ErrInvalidURL
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return 0, "", ErrFetchTimeout
		}
		return 0, "", fmt.Errorf("download: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, "", &RemoteRejectedError{Status: resp.StatusCode}
	}
	written, err := io.Copy(sink, resp.Body)
	if err != nil {
		if isTimeout(err) {
			return written, "", ErrFetchTimeout
		}
		if errors.Is(err, ErrAssetTooLarge) {
			return written, "", err
		}
		return written, "", fmt.Errorf("copy body: %w", err)
	}
	if written == 0 {
		return 0, "", ErrEmptyPayload
	}
	mime := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	f.logger.Debug("fetched", slog.Int64("bytes", written), slog.String("mime", mime))
	return written, mime, nil
}

// FetchToFile streams rawURL into the artifact's path without buffering the
// payload in memory. The transfer is aborted with *TooLargeError once it
// reaches maxBytes; a non-positive maxBytes means the default ceiling.
func (f *Fetcher) FetchToFile(ctx context.Context, rawURL string, art *Artifact, maxBytes int64) (FetchResult, error) {
	if art == nil {
		return FetchResult{}, fmt.Errorf("artifact is required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultCeilingMB * bytesPerMB
	}
	file, err := os.Create(art.Path)
	if err != nil {
		return FetchResult{}, fmt.Errorf("create artifact: %w", err)
	}
	size, mime, fetchErr := f.Fetch(ctx, rawURL, &cappedWriter{w: file, max: maxBytes})
	if closeErr := file.Close(); closeErr != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("close artifact: %w", closeErr)
	}
	if fetchErr != nil {
		return FetchResult{}, fetchErr
	}
	return FetchResult{Path: art.Path, Size: size, Mime: mime}, nil
}

// FetchBytes downloads rawURL into memory, failing with ErrAssetTooLarge past maxBytes.
func (f *Fetcher) FetchBytes(ctx context.Context, rawURL string, maxBytes int64) (FetchResult, error) {
	if maxBytes <= 0 {
		maxBytes = MaxThumbnailBytes
	}
	buf := &limitedBuffer{max: maxBytes}
	size, mime, err := f.Fetch(ctx, rawURL, buf)
	if err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Data: buf.Bytes(), Size: size, Mime: mime}, nil
}

// IsFetchableURL reports whether rawURL has an http or https scheme.
func IsFetchableURL(rawURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// limitedBuffer does not embed bytes.Buffer so io.Copy cannot
// bypass Write through ReadFrom.
type limitedBuffer struct {
	buf bytes.Buffer
	max int64
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if int64(b.buf.Len()+len(p)) > b.max {
		return 0, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, b.max)
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

// cappedWriter matches CheckSize: a payload reaching max bytes is too large.
type cappedWriter struct {
	w   io.Writer
	max int64
	n   int64
}

func (c *cappedWriter) Write(p []byte) (int, error) {
	if c.n+int64(len(p)) >= c.max {
		return 0, &TooLargeError{
			SizeMB:  float64(c.n+int64(len(p))) / bytesPerMB,
			LimitMB: c.max / bytesPerMB,
		}
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
