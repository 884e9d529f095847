// Package checksum verifies downloaded bytes against server-provided
// integrity tokens.
//
// Cloud object stores expose different tokens on the same GET response:
//   - GCS: x-goog-hash with a base64 big-endian CRC32C (and sometimes md5)
//   - S3 single-part uploads: ETag equal to the object's hex md5
//   - S3 multipart uploads: ETag of the form "<md5 of part md5s>-<parts>"
//
// FromHeaders picks the strongest usable token. A Verifier is fed the
// object's bytes in offset order and compared once at end of stream.
//
// The multipart ETag does not transmit the uploader's part size, so that
// verifier runs several candidate part layouts in parallel and accepts if
// any of them reproduces the ETag.
//
// # Usage
//
//	v := checksum.FromHeaders(resp.Header, size)
//	if v != nil {
//	    io.Copy(io.MultiWriter(dst, v), src)
//	    if !v.OK() {
//	        // v.Expected() vs v.Actual()
//	    }
//	}
package checksum
