// Package http provides an HTTP client optimized for ranged object reads.
//
// This package handles:
//   - Connection pooling for high parallelism
//   - A single-request probe for size, range support, and metadata
//   - Range requests filling caller-owned buffers
//   - Retry with exponential backoff and jitter
//   - ETag cleaning and Content-Range parsing
//
// The probe uses a ranged GET rather than HEAD because signed URLs are
// bound to a method: a URL signed for GET is rejected on HEAD by S3-style
// endpoints.
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	info, err := client.Probe(ctx, url)
//	// info.Size, info.RangeSupported, info.Header
//
//	n, err := client.ReadRangeInto(ctx, url, startByte, endByte, buf)
//
// ReadRangeInto is deliberately single-shot; callers drive retries per
// part with Backoff and classify failures with Retryable.
package http
