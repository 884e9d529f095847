package getm_test

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/DataBiosphere/getm/pkg/getm"
)

func Example_download() {
	ctx := context.Background()

	// Open probes the object and starts fetching it in parallel
	s, _ := getm.Open(ctx, "https://example.com/objects/file.tar.gz?X-Amz-Signature=...",
		getm.WithConcurrency(4),
		getm.WithChunkSize(8*1024*1024),
	)
	defer s.Close()

	// Stream is an io.Reader; bytes arrive in offset order and are
	// verified against the server's checksum at the end
	out, _ := os.Create("file.tar.gz")
	defer out.Close()

	if _, err := io.Copy(out, s); err != nil {
		panic(err) // FetchError, IntegrityError, or ctx cancellation
	}
}

func Example_probe() {
	ctx := context.Background()

	// Probe answers "how big is it, can we range it, can we verify it"
	// without starting the download
	info, _ := getm.Probe(ctx, "https://example.com/objects/file.bin")
	fmt.Printf("%s: %d bytes, checksum %s\n", info.Name, info.Size, info.ChecksumAlgorithm)
}

func Example_chunks() {
	ctx := context.Background()

	s, _ := getm.Open(ctx, "https://example.com/objects/file.bin")
	defer s.Close()

	// Chunks avoids Read's copy: each part's buffer is handed out
	// directly and recycled on the next call
	chunks := s.Chunks()
	for {
		c, err := chunks.Next(ctx)
		if err == io.EOF {
			break // integrity check passed
		}
		if err != nil {
			panic(err)
		}

		fmt.Printf("part %d: offset=%d, %d bytes\n", c.Index, c.Offset, len(c.Data))

		// In real code: hand c.Data to a parser, writer, or socket
		// before the next call recycles it
	}
}

func Example_all() {
	ctx := context.Background()

	chunks, _ := getm.Iterate(ctx, "https://example.com/objects/file.bin")
	defer chunks.Close()

	// All releases each chunk after its loop body; a terminal failure
	// arrives as the final iteration's error
	for c, err := range chunks.All(ctx) {
		if err != nil {
			panic(err)
		}
		fmt.Printf("offset=%d, %d bytes\n", c.Offset, len(c.Data))
	}
}

func Example_unordered() {
	ctx := context.Background()

	// Unordered delivery hands parts out as they complete; each one
	// carries its offset so it can be written wherever it belongs
	s, _ := getm.Open(ctx, "https://example.com/objects/file.bin",
		getm.WithConcurrency(8),
		getm.WithUnordered(),
	)
	defer s.Close()

	out, _ := os.Create("file.bin")
	defer out.Close()

	err := s.Chunks().Collect(ctx, func(c getm.Chunk) error {
		_, err := out.WriteAt(c.Data, c.Offset)
		return err
	})
	if err != nil {
		panic(err)
	}
}

func Example_checksumOverride() {
	ctx := context.Background()

	// A manifest can carry a known checksum for the object; it takes
	// precedence over whatever the server advertises
	s, _ := getm.Open(ctx, "https://example.com/objects/file.bin",
		getm.WithChecksum("gs_crc32c", "yZRlqg=="),
	)
	defer s.Close()

	io.Copy(io.Discard, s)
}

func Example_stats() {
	ctx := context.Background()

	s, _ := getm.Open(ctx, "https://example.com/objects/file.bin")
	defer s.Close()

	io.Copy(io.Discard, s)

	// Stats never blocks, so a progress loop can poll it while
	// another goroutine reads
	st := s.Stats()
	fmt.Printf("%d/%d parts, %d retries, verified=%v\n",
		st.Delivered, st.Parts, st.Retries, st.Verified)
}
