package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"strconv"
)

const mib = 1 << 20

// maxLayouts bounds how many candidate part sizes run in parallel. The
// valid window narrows as the part count grows, so real objects rarely
// admit more than a couple of candidates.
const maxLayouts = 16

// s3MultiVerifier reproduces a multipart S3 ETag: the md5 of the
// concatenated per-part md5 digests, suffixed with the part count. The
// uploader's part size is not transmitted, so every plausible layout is
// computed in parallel and any match accepts.
type s3MultiVerifier struct {
	expected string
	layouts  []*s3Layout
	final    []string
}

type s3Layout struct {
	partSize  int64
	remaining int64
	part      hash.Hash
	aggregate hash.Hash
	count     int
}

func newS3Multi(expectedSum string, parts int, size int64) *s3MultiVerifier {
	v := &s3MultiVerifier{
		expected: expectedSum + "-" + strconv.Itoa(parts),
	}
	for _, partSize := range s3PartSizes(size, int64(parts)) {
		v.layouts = append(v.layouts, &s3Layout{
			partSize:  partSize,
			remaining: partSize,
			part:      md5.New(),
			aggregate: md5.New(),
		})
	}
	return v
}

// s3PartSizes enumerates part sizes consistent with splitting size bytes
// into exactly parts parts: ceil(size/partSize) == parts. Uploaders align
// part sizes to whole MiB, so aligned candidates inside the window are
// tried first, with the exact window bounds as a fallback.
func s3PartSizes(size, parts int64) []int64 {
	if parts < 1 || size < parts {
		return nil
	}
	if parts == 1 {
		return []int64{size}
	}

	lo := (size + parts - 1) / parts
	hi := (size - 1) / (parts - 1)
	if hi < lo {
		hi = lo
	}

	var sizes []int64
	for partSize := (lo + mib - 1) / mib * mib; partSize <= hi; partSize += mib {
		sizes = append(sizes, partSize)
		if len(sizes) == maxLayouts {
			return sizes
		}
	}
	if len(sizes) == 0 {
		sizes = append(sizes, lo)
		if hi != lo {
			sizes = append(sizes, hi)
		}
	}
	return sizes
}

func (v *s3MultiVerifier) Write(p []byte) (int, error) {
	for _, l := range v.layouts {
		l.write(p)
	}
	return len(p), nil
}

func (l *s3Layout) write(p []byte) {
	for len(p) > 0 {
		n := int64(len(p))
		if n > l.remaining {
			n = l.remaining
		}
		l.part.Write(p[:n])
		l.remaining -= n
		p = p[n:]
		if l.remaining == 0 {
			l.closePart()
		}
	}
}

func (l *s3Layout) closePart() {
	l.aggregate.Write(l.part.Sum(nil))
	l.count++
	l.part.Reset()
	l.remaining = l.partSize
}

func (l *s3Layout) etag() string {
	if l.remaining < l.partSize {
		l.closePart()
	}
	return hex.EncodeToString(l.aggregate.Sum(nil)) + "-" + strconv.Itoa(l.count)
}

// finalize computes each layout's etag exactly once.
func (v *s3MultiVerifier) finalize() {
	if v.final != nil {
		return
	}
	v.final = make([]string, 0, len(v.layouts))
	for _, l := range v.layouts {
		v.final = append(v.final, l.etag())
	}
}

func (v *s3MultiVerifier) OK() bool {
	v.finalize()
	for _, etag := range v.final {
		if etag == v.expected {
			return true
		}
	}
	return false
}

func (v *s3MultiVerifier) Algorithm() Algorithm { return S3ETag }
func (v *s3MultiVerifier) Expected() string     { return v.expected }

// Actual returns the matching layout's etag, or the first candidate when
// none matched.
func (v *s3MultiVerifier) Actual() string {
	v.finalize()
	for _, etag := range v.final {
		if etag == v.expected {
			return etag
		}
	}
	if len(v.final) > 0 {
		return v.final[0]
	}
	return ""
}
