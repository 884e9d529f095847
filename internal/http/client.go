package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Common errors.
var (
	ErrRangeNotSupported  = errors.New("http: server does not support range requests")
	ErrNotFound           = errors.New("http: resource not found")
	ErrForbidden          = errors.New("http: access forbidden")
	ErrUnauthorized       = errors.New("http: unauthorized")
	ErrServerError        = errors.New("http: server error")
	ErrThrottled          = errors.New("http: too many requests")
	ErrUnknownLength      = errors.New("http: response carries no content length")
	ErrInconsistentLength = errors.New("http: content length changed between attempts")
)

// retryableStatus lists statuses worth another attempt. Everything else in
// the 4xx/5xx space fails immediately.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// Timeout for individual requests.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts for the
	// probe and plain GET paths. Range fetches are single-shot; their
	// retry policy lives with the caller.
	// Default: 5
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 500ms
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 100,
		Timeout:             30 * time.Second,
		RetryAttempts:       5,
		RetryBackoff:        500 * time.Millisecond,
		RetryMaxBackoff:     30 * time.Second,
	}
}

// Info describes a remote object as learned from the probe request.
type Info struct {
	// Size is the object's total length in bytes.
	Size int64

	// ETag is the entity tag with quotes and weak prefix stripped.
	ETag string

	// RangeSupported reports whether the server honored a byte-range
	// request, as opposed to merely advertising Accept-Ranges.
	RangeSupported bool

	ContentType string

	// Name is the object's filename from Content-Disposition, falling
	// back to the URL path basename. May be empty.
	Name string

	// Header is a snapshot of the probe response headers, kept so
	// integrity tokens can be extracted by the caller.
	Header http.Header
}

// Client is an HTTP client optimized for large ranged downloads.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // We want raw bytes for range requests
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// Probe learns the object's size, range support, and metadata with a single
// GET for the first byte. Signed URLs are typically bound to the GET
// method, so a HEAD request would be rejected outright by S3-style
// endpoints.
//
// A 206 response yields the size from Content-Range and confirms range
// support by behavior. A 200 response means the server ignored the range;
// the body is abandoned and the size comes from Content-Length. Transient
// failures are retried; a size that changes between attempts means the
// object is mutating under us and fails the probe.
func (c *Client) Probe(ctx context.Context, url string) (*Info, error) {
	var lastErr error
	seenSize := int64(-1)

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.Backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Range", "bytes=0-0")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		size, sized := probeSize(resp)
		resp.Body.Close()

		if sized {
			if seenSize >= 0 && size != seenSize {
				return nil, fmt.Errorf("%w: got %d then %d", ErrInconsistentLength, seenSize, size)
			}
			seenSize = size
		}

		if code := resp.StatusCode; code != http.StatusOK && code != http.StatusPartialContent {
			// A zero-byte object cannot satisfy bytes=0-0; the 416
			// carries the authoritative zero total in Content-Range.
			if code == http.StatusRequestedRangeNotSatisfiable && sized && size == 0 {
				return &Info{
					Size:           0,
					ETag:           cleanETag(resp.Header.Get("ETag")),
					RangeSupported: true,
					ContentType:    resp.Header.Get("Content-Type"),
					Name:           objectName(url, resp.Header),
					Header:         resp.Header.Clone(),
				}, nil
			}
			if err := checkStatusCode(code); Retryable(err) {
				lastErr = err
				continue
			} else if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("http: unexpected status %s", resp.Status)
		}

		if !sized {
			lastErr = ErrUnknownLength
			continue
		}

		return &Info{
			Size:           size,
			ETag:           cleanETag(resp.Header.Get("ETag")),
			RangeSupported: resp.StatusCode == http.StatusPartialContent,
			ContentType:    resp.Header.Get("Content-Type"),
			Name:           objectName(url, resp.Header),
			Header:         resp.Header.Clone(),
		}, nil
	}

	return nil, fmt.Errorf("probe failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

// probeSize extracts the object's total size from a probe response:
// the Content-Range total when present, Content-Length otherwise.
func probeSize(resp *http.Response) (int64, bool) {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if _, _, total, err := ParseContentRange(cr); err == nil && total >= 0 {
			return total, true
		}
		return 0, false
	}
	if resp.StatusCode == http.StatusOK && resp.ContentLength >= 0 {
		return resp.ContentLength, true
	}
	return 0, false
}

// ReadRangeInto performs one range request for the inclusive byte range
// [startByte, endByte] and fills buf with exactly endByte-startByte+1
// bytes. It does not retry: the caller owns the per-part retry policy and
// classifies failures with Retryable. A short body is reported as
// io.ErrUnexpectedEOF, which is retryable.
func (c *Client) ReadRangeInto(ctx context.Context, url string, startByte, endByte int64, buf []byte) (int, error) {
	want := endByte - startByte + 1
	if want <= 0 || int64(len(buf)) < want {
		return 0, fmt.Errorf("http: range %d-%d does not fit buffer of %d bytes", startByte, endByte, len(buf))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", startByte, endByte))

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// Some servers return 200 with the requested range; without a
		// Content-Range header it is the whole object instead.
		if resp.Header.Get("Content-Range") == "" {
			return 0, ErrRangeNotSupported
		}
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, fmt.Errorf("%w: bytes=%d-%d", ErrRangeNotSupported, startByte, endByte)
	default:
		if err := checkStatusCode(resp.StatusCode); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("http: unexpected status %s", resp.Status)
	}

	n, err := io.ReadFull(resp.Body, buf[:want])
	if err != nil {
		return n, fmt.Errorf("read range %d-%d: %w", startByte, endByte, err)
	}
	return n, nil
}

// Get performs a plain streaming GET for the whole object. Only the
// request phase is retried; once the body is handed out, mid-stream
// failures surface to the reader.
func (c *Client) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.Backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if err := checkStatusCode(resp.StatusCode); Retryable(err) {
			resp.Body.Close()
			lastErr = err
			continue
		} else if err != nil {
			resp.Body.Close()
			return nil, err
		}

		return resp.Body, nil
	}

	return nil, fmt.Errorf("get request failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

// Backoff waits for an exponentially increasing duration with jitter.
// attempt counts from 1 for the first retry.
func (c *Client) Backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// Retryable reports whether an error warrants another attempt at the same
// request: throttling, transient server errors, timeouts, dropped
// connections, and short bodies.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrServerError), errors.Is(err, ErrThrottled):
		return true
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrUnauthorized), errors.Is(err, ErrRangeNotSupported):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return false
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusTooManyRequests:
		return ErrThrottled
	case retryableStatus[code]:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("http: unexpected status code: %d", code)
	}
}

// cleanETag removes quotes and the weak validator prefix from an ETag.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}

// objectName resolves a filename for the object: the Content-Disposition
// filename parameter when present, otherwise the URL path basename.
func objectName(rawURL string, h http.Header) string {
	if cd := h.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return path.Base(name)
			}
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := u.Path
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}
	name := path.Base(p)
	if name == "/" || name == "." {
		return ""
	}
	return name
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown. The
// unsatisfied-range form "bytes */total" yields start and end of -1.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total, bytes start-end/*, or bytes */total
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	if parts[0] == "*" {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
		return -1, -1, total, nil
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}
