// Package transcript persists a finished session's terminal output to disk
// so reported games can be inspected after their containers are gone.
package transcript

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"gamebattle/arena/internal/logging"
	"gamebattle/arena/internal/sandbox"
)

var bundleNameCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version    int      `json:"version"`
	CreatedAt  string   `json:"created_at"`
	Owner      string   `json:"owner"`
	Games      []string `json:"games"`
	FramesPath string   `json:"frames_path"`
	RawPaths   []string `json:"raw_paths"`
}

// GameRecord is one game's contribution to a bundle.
type GameRecord struct {
	Name   string
	Frames []sandbox.Frame
}

// Archiver writes one bundle per archived session under its root.
type Archiver struct {
	root string
	now  func() time.Time
	log  zerolog.Logger
}

// NewArchiver prepares an archiver rooted at dir.
func NewArchiver(dir string) (*Archiver, error) {
	if dir == "" {
		return nil, fmt.Errorf("transcript root must be provided")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Archiver{root: dir, now: time.Now, log: logging.Component("transcript")}, nil
}

// Archive writes the session bundle: a snappy-compressed JSONL frame log
// spanning every game plus one zstd-compressed raw byte file per game.
func (a *Archiver) Archive(id string, owner string, records []GameRecord) (Manifest, error) {
	cleaned := bundleNameCleaner.ReplaceAllString(id, "")
	if cleaned == "" {
		cleaned = "session"
	}
	created := a.now().UTC()
	dir := filepath.Join(a.root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Manifest{}, err
	}

	manifest := Manifest{
		Version:    1,
		CreatedAt:  created.Format(time.RFC3339Nano),
		Owner:      owner,
		FramesPath: "frames.jsonl.sz",
	}

	// 1.- One raw terminal dump per game, zstd-compressed.
	for i, record := range records {
		rawName := fmt.Sprintf("game-%d.raw.zst", i)
		if err := writeRaw(filepath.Join(dir, rawName), record.Frames); err != nil {
			return Manifest{}, err
		}
		manifest.Games = append(manifest.Games, record.Name)
		manifest.RawPaths = append(manifest.RawPaths, rawName)
	}

	// 2.- The timestamped frame log across all games, snappy-compressed.
	if err := writeFrameLog(filepath.Join(dir, manifest.FramesPath), records); err != nil {
		return Manifest{}, err
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		return Manifest{}, err
	}

	a.log.Info().Str("session", id).Str("dir", dir).Msg("transcript archived")
	return manifest, nil
}

func writeRaw(path string, frames []sandbox.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	encoder, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return err
	}
	for _, frame := range frames {
		if _, err := encoder.Write(frame.Data); err != nil {
			encoder.Close()
			file.Close()
			return err
		}
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

type frameLine struct {
	Game      int    `json:"game"`
	Stream    int    `json:"stream"`
	Timestamp string `json:"timestamp"`
	Data      string `json:"data"`
}

func writeFrameLog(path string, records []GameRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	stream := snappy.NewBufferedWriter(file)
	encoder := json.NewEncoder(stream)
	for i, record := range records {
		for _, frame := range record.Frames {
			line := frameLine{
				Game:      i,
				Stream:    frame.Stream,
				Timestamp: frame.Timestamp.UTC().Format(time.RFC3339Nano),
				Data:      base64.StdEncoding.EncodeToString(frame.Data),
			}
			if err := encoder.Encode(&line); err != nil {
				stream.Close()
				file.Close()
				return err
			}
		}
	}
	if err := stream.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
