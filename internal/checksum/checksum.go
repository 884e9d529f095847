package checksum

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"net/http"
	"strconv"
	"strings"
)

// Algorithm identifies how an expected checksum value was produced.
// The names match the values accepted in manifest files.
type Algorithm string

const (
	MD5      Algorithm = "md5"
	GSCRC32C Algorithm = "gs_crc32c"
	S3ETag   Algorithm = "s3_etag"
	Null     Algorithm = "null"
)

// Verifier accumulates object bytes in strict offset order and compares
// the resulting digest against an expected value.
type Verifier interface {
	// Write feeds the next run of bytes. Never fails.
	Write(p []byte) (int, error)

	// OK reports whether the digest matches the expected value. Call
	// only after all bytes have been written; it finalizes the digest.
	OK() bool

	Algorithm() Algorithm
	Expected() string

	// Actual returns the computed value in the expected value's form.
	// Valid after OK.
	Actual() string
}

// New builds a Verifier for an explicitly supplied expected value, as used
// by manifest entries. size is required to lay out multipart S3 etags.
func New(alg Algorithm, expected string, size int64) (Verifier, error) {
	switch alg {
	case MD5:
		if !isHex(expected, 32) {
			return nil, fmt.Errorf("checksum: %q is not a hex md5", expected)
		}
		return newMD5(MD5, expected), nil
	case GSCRC32C:
		raw, err := base64.StdEncoding.DecodeString(expected)
		if err != nil || len(raw) != 4 {
			return nil, fmt.Errorf("checksum: %q is not a base64 crc32c", expected)
		}
		return newCRC32C(expected), nil
	case S3ETag:
		if etag, parts, ok := splitMultipartETag(expected); ok {
			return newS3Multi(etag, parts, size), nil
		}
		if !isHex(expected, 32) {
			return nil, fmt.Errorf("checksum: %q is not an s3 etag", expected)
		}
		return newMD5(S3ETag, expected), nil
	case Null:
		return nullVerifier{}, nil
	default:
		return nil, fmt.Errorf("checksum: unknown algorithm %q", alg)
	}
}

// FromHeaders derives a Verifier from response headers, or nil when the
// server exposed no usable token. GCS crc32c wins over md5; a bare ETag is
// only trusted when it has md5 or multipart shape.
func FromHeaders(h http.Header, size int64) Verifier {
	if gh := h.Get("X-Goog-Hash"); gh != "" {
		hashes := parseGoogHash(gh)
		if v, ok := hashes["crc32c"]; ok {
			if raw, err := base64.StdEncoding.DecodeString(v); err == nil && len(raw) == 4 {
				return newCRC32C(v)
			}
		}
		if v, ok := hashes["md5"]; ok {
			if raw, err := base64.StdEncoding.DecodeString(v); err == nil && len(raw) == md5.Size {
				return newMD5(MD5, hex.EncodeToString(raw))
			}
		}
	}

	etag := cleanETag(h.Get("ETag"))
	if etag, parts, ok := splitMultipartETag(etag); ok {
		return newS3Multi(etag, parts, size)
	}
	if isHex(etag, 32) {
		return newMD5(MD5, etag)
	}
	return nil
}

// parseGoogHash splits "crc32c=AAAA==,md5=BBBB==" into a name-value map.
// Values are base64 and contain '=' padding, so only the first '=' splits.
func parseGoogHash(header string) map[string]string {
	hashes := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" || value == "" {
			continue
		}
		hashes[strings.ToLower(name)] = value
	}
	return hashes
}

// cleanETag strips the weak validator prefix and surrounding quotes.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

// splitMultipartETag recognizes the "<32 hex>-<parts>" multipart form.
func splitMultipartETag(etag string) (string, int, bool) {
	sum, count, ok := strings.Cut(etag, "-")
	if !ok || !isHex(sum, 32) {
		return "", 0, false
	}
	parts, err := strconv.Atoi(count)
	if err != nil || parts < 1 {
		return "", 0, false
	}
	return sum, parts, true
}

func isHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

type md5Verifier struct {
	alg      Algorithm
	expected string
	h        hash.Hash
}

func newMD5(alg Algorithm, expectedHex string) *md5Verifier {
	return &md5Verifier{alg: alg, expected: strings.ToLower(expectedHex), h: md5.New()}
}

func (v *md5Verifier) Write(p []byte) (int, error) { return v.h.Write(p) }
func (v *md5Verifier) Algorithm() Algorithm        { return v.alg }
func (v *md5Verifier) Expected() string            { return v.expected }
func (v *md5Verifier) Actual() string              { return hex.EncodeToString(v.h.Sum(nil)) }
func (v *md5Verifier) OK() bool                    { return v.Actual() == v.expected }

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type crc32cVerifier struct {
	expected string
	h        hash.Hash32
}

func newCRC32C(expectedBase64 string) *crc32cVerifier {
	return &crc32cVerifier{expected: expectedBase64, h: crc32.New(castagnoli)}
}

func (v *crc32cVerifier) Write(p []byte) (int, error) { return v.h.Write(p) }
func (v *crc32cVerifier) Algorithm() Algorithm        { return GSCRC32C }
func (v *crc32cVerifier) Expected() string            { return v.expected }

func (v *crc32cVerifier) Actual() string {
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], v.h.Sum32())
	return base64.StdEncoding.EncodeToString(raw[:])
}

func (v *crc32cVerifier) OK() bool { return v.Actual() == v.expected }

type nullVerifier struct{}

func (nullVerifier) Write(p []byte) (int, error) { return len(p), nil }
func (nullVerifier) OK() bool                    { return true }
func (nullVerifier) Algorithm() Algorithm        { return Null }
func (nullVerifier) Expected() string            { return "" }
func (nullVerifier) Actual() string              { return "" }
