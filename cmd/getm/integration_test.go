//go:build integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "gocloud.dev/blob/s3blob"

	"github.com/DataBiosphere/getm/internal/testutils"
)

func TestCLIDownloadToMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	obj := testutils.NewTestObject(t, "large.bin", 4*1024*1024)

	t.Log("Starting HTTP test server...")
	server := testutils.StartObjectServer(t, []testutils.TestObject{obj}, testutils.ServerOptions{})

	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "getm-test-bucket")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	// Splice the object key into the bucket URL ahead of the minio
	// connection query parameters.
	base, query, _ := strings.Cut(minio.BucketURL, "?")
	dest := base + "/downloads/large.bin?" + query

	exitCode := run([]string{
		"-concurrency", "4",
		"-chunk-size", "256KiB",
		server.URL + "/" + obj.Name,
		dest,
	})
	if exitCode != ExitSuccess {
		t.Fatalf("download failed with exit code %d", exitCode)
	}

	// Read the object back out of minio and compare.
	bkt, err := minio.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bkt.Close()

	r, err := bkt.NewReader(ctx, "downloads/large.bin", nil)
	if err != nil {
		t.Fatalf("open object reader: %v", err)
	}
	defer r.Close()

	testutils.CompareReaderToData(t, r, obj.Data)
}

func TestCLIDownloadToFileWithRetries(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	obj := testutils.NewTestObject(t, "flaky.bin", 2*1024*1024)
	server := testutils.StartObjectServer(t, []testutils.TestObject{obj}, testutils.ServerOptions{
		FailFirst: 3,
	})

	tmpFile := filepath.Join(t.TempDir(), "downloaded.bin")
	t.Setenv("GETM_RETRY_BACKOFF", "10ms")
	t.Setenv("GETM_RETRY_MAX_BACKOFF", "50ms")

	exitCode := run([]string{
		"-concurrency", "4",
		"-chunk-size", "256KiB",
		"-retries", "4",
		server.URL + "/" + obj.Name,
		tmpFile,
	})
	if exitCode != ExitSuccess {
		t.Fatalf("download failed with exit code %d", exitCode)
	}

	f, err := os.Open(tmpFile)
	if err != nil {
		t.Fatalf("open downloaded file: %v", err)
	}
	defer f.Close()
	testutils.CompareReaderToData(t, f, obj.Data)
}

func TestCLIDownloadSequentialFallback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	obj := testutils.NewTestObject(t, "norange.bin", 1024*1024)
	server := testutils.StartObjectServer(t, []testutils.TestObject{obj}, testutils.ServerOptions{
		IgnoreRanges: true,
	})

	tmpFile := filepath.Join(t.TempDir(), "downloaded.bin")
	exitCode := run([]string{
		"-concurrency", "4",
		"-chunk-size", "128KiB",
		server.URL + "/" + obj.Name,
		tmpFile,
	})
	if exitCode != ExitSuccess {
		t.Fatalf("download failed with exit code %d", exitCode)
	}

	f, err := os.Open(tmpFile)
	if err != nil {
		t.Fatalf("open downloaded file: %v", err)
	}
	defer f.Close()
	testutils.CompareReaderToData(t, f, obj.Data)
}

func TestCLIManifestToMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	objA := testutils.NewTestObject(t, "manifest-a.bin", 512*1024)
	objB := testutils.NewTestObject(t, "manifest-b.bin", 768*1024)
	server := testutils.StartObjectServer(t, []testutils.TestObject{objA, objB}, testutils.ServerOptions{})

	minio := testutils.StartMinioContainer(t, ctx, "getm-manifest-bucket")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	base, query, _ := strings.Cut(minio.BucketURL, "?")

	dir := t.TempDir()
	entries := []manifestEntry{
		{URL: server.URL + "/" + objA.Name, Filepath: base + "/in/" + objA.Name + "?" + query},
		{URL: server.URL + "/" + objB.Name, Filepath: base + "/in/" + objB.Name + "?" + query,
			Checksum: objB.ETag, ChecksumAlgorithm: "md5"},
	}
	manifestPath := writeManifest(t, dir, entries)

	exitCode := run([]string{
		"-chunk-size", "128KiB",
		"-manifest", manifestPath,
	})
	if exitCode != ExitSuccess {
		t.Fatalf("manifest download failed with exit code %d", exitCode)
	}

	bkt, err := minio.OpenBucket(ctx)
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	defer bkt.Close()

	for _, obj := range []testutils.TestObject{objA, objB} {
		r, err := bkt.NewReader(ctx, "in/"+obj.Name, nil)
		if err != nil {
			t.Fatalf("open reader for %s: %v", obj.Name, err)
		}
		testutils.CompareReaderToData(t, r, obj.Data)
		r.Close()
	}
}
