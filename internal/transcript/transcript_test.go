package transcript

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"gamebattle/arena/internal/sandbox"
)

func TestArchiveWritesBundle(t *testing.T) {
	root := t.TempDir()
	a, err := NewArchiver(root)
	if err != nil {
		t.Fatalf("archiver failed: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []GameRecord{
		{Name: "Snake", Frames: []sandbox.Frame{
			{Stream: 1, Data: []byte("hel"), Timestamp: base},
			{Stream: 1, Data: []byte("lo"), Timestamp: base.Add(time.Second)},
		}},
		{Name: "Pong", Frames: []sandbox.Frame{
			{Stream: 1, Data: []byte("pong!"), Timestamp: base},
		}},
	}

	manifest, err := a.Archive("d0a2f5c1", "owner@example.com", records)
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if len(manifest.RawPaths) != 2 || manifest.Games[0] != "Snake" {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}

	entries, err := os.ReadDir(root)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one bundle, got %v (%v)", entries, err)
	}
	dir := filepath.Join(root, entries[0].Name())

	// The raw dump must decompress back to the concatenated PTY bytes.
	raw, err := os.ReadFile(filepath.Join(dir, manifest.RawPaths[0]))
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	decoder, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	decoded, err := io.ReadAll(decoder)
	decoder.Close()
	if err != nil || string(decoded) != "hello" {
		t.Fatalf("raw dump mismatch: %q (%v)", decoded, err)
	}

	// The frame log must carry one JSON line per frame.
	framed, err := os.ReadFile(filepath.Join(dir, manifest.FramesPath))
	if err != nil {
		t.Fatalf("read frames: %v", err)
	}
	lines, err := io.ReadAll(snappy.NewReader(bytes.NewReader(framed)))
	if err != nil {
		t.Fatalf("snappy read: %v", err)
	}
	count := 0
	decoderJSON := json.NewDecoder(bytes.NewReader(lines))
	for decoderJSON.More() {
		var line map[string]any
		if err := decoderJSON.Decode(&line); err != nil {
			t.Fatalf("frame line decode: %v", err)
		}
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 frame lines, got %d", count)
	}

	var onDisk Manifest
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("manifest decode: %v", err)
	}
	if onDisk.Owner != "owner@example.com" || onDisk.Version != 1 {
		t.Fatalf("manifest mismatch: %+v", onDisk)
	}
}
