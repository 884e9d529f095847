// Package getm provides integrity-verified streaming reads of large
// objects behind time-limited signed URLs.
//
// This package fetches an object in fixed-size parts over parallel range
// requests, reassembles them in offset order through a bounded pool of
// shared memory buffers, and checks the result against whatever checksum
// the server advertised (S3 ETags, including the multipart form, and GCS
// CRC32C/MD5 hashes). The payload is never buffered in full: memory use
// is bounded by the pool regardless of object size.
//
// # Opening
//
// Use [Open] to probe the object and start the fetch pipeline. The probe
// is a single ranged GET, never a HEAD, because signed URLs are commonly
// bound to the GET method. [Probe] issues the same metadata request
// without starting a download, and [Iterate] opens straight into the
// chunk iterator.
//
// Options:
//   - [WithConcurrency]: Number of fetch workers; 0 selects a single
//     synchronous streaming request (default 4)
//   - [WithChunkSize]: Bytes per part (default 1 MiB)
//   - [WithPoolSize]: Shared buffer count; must be at least the
//     concurrency, 0 sizes it automatically (default 0)
//   - [WithRetries]: Per-part retries after the first attempt (default 4)
//   - [WithChecksum]: Override the server-advertised integrity token
//   - [WithUnordered]: Deliver parts as they complete, skipping
//     verification
//
// # Reading
//
// [Stream] is an io.Reader delivering the object's bytes in order. Part
// buffers are recycled as soon as their bytes have been consumed. When
// the last byte has been read, the running digest is compared against
// the expected checksum and the next Read returns either io.EOF or an
// [IntegrityError].
//
// Alternatively [Stream.Chunks] iterates part by part without copying:
//
//	chunks := s.Chunks()
//	for {
//	    c, err := chunks.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    // c.Data is valid until the next call to Next
//	}
//
// or as a range loop that releases each chunk after its body:
//
//	for c, err := range s.Chunks().All(ctx) {
//	    ...
//	}
//
// # Failure Model
//
// Transient failures (throttling, 5xx, dropped connections, short
// bodies) are retried per part with exponential backoff; other 4xx
// responses abort the stream with a [FetchError]. A failed probe is a
// [ProbeError]. Signed query parameters are stripped from every error
// message.
//
// See example_test.go for usage examples.
package getm
