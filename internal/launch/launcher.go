// Package launch owns the game catalogue: metadata on disk, submitted
// source files, and image builds delegated to a Builder.
package launch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"gamebattle/arena/internal/fault"
	"gamebattle/arena/internal/games"
	"gamebattle/arena/internal/logging"
)

const (
	// MaxFileSize caps one submitted file.
	MaxFileSize = 128 << 10
	// MaxFiles caps a team's submitted file count.
	MaxFiles = 64
)

// Builder turns a team's submitted files into a runnable image.
type Builder interface {
	Build(ctx context.Context, tag, dir, entrypoint string) error
}

// Launcher scans and maintains the catalogue. It satisfies
// pairing.Catalogue.
type Launcher struct {
	root    string
	builder Builder
	log     zerolog.Logger

	mu        sync.RWMutex
	catalogue map[string]games.Meta
}

// NewLauncher constructs a launcher rooted at the games directory.
func NewLauncher(root string, builder Builder) *Launcher {
	return &Launcher{
		root:      root,
		builder:   builder,
		log:       logging.Component("launch"),
		catalogue: make(map[string]games.Meta),
	}
}

// Scan reads every *.yaml metadata file under the root, builds its image
// and populates the catalogue. Damaged entries are logged and skipped so
// one bad submission cannot take the arena down.
func (l *Launcher) Scan(ctx context.Context) error {
	paths, err := filepath.Glob(filepath.Join(l.root, "*.yaml"))
	if err != nil {
		return fault.Gamebattlef("scan games directory: %v", err)
	}
	sort.Strings(paths)
	for _, path := range paths {
		meta, err := readMeta(path)
		if err != nil {
			l.log.Warn().Err(err).Str("path", path).Msg("skipping damaged metadata")
			continue
		}
		if err := l.builder.Build(ctx, meta.ImageTag(), l.teamDir(meta.TeamID), meta.Entrypoint); err != nil {
			l.log.Warn().Err(err).Str("team", meta.TeamID).Msg("skipping unbuildable game")
			continue
		}
		l.mu.Lock()
		l.catalogue[meta.TeamID] = meta
		l.mu.Unlock()
	}
	return nil
}

// BuildGame validates, persists and builds a new or updated game, then
// upserts the catalogue entry.
func (l *Launcher) BuildGame(ctx context.Context, meta games.Meta) error {
	if meta.Name == "" || meta.TeamID == "" {
		return fault.Invalidf("game needs a name and a team id")
	}
	if !ValidPath(meta.Entrypoint, true) {
		return fault.Invalidf("entrypoint %q", meta.Entrypoint)
	}

	encoded, err := yaml.Marshal(meta)
	if err != nil {
		return fault.Gamebattlef("encode metadata: %v", err)
	}
	if err := os.WriteFile(l.metaPath(meta.TeamID), encoded, 0o644); err != nil {
		return fault.Gamebattlef("persist metadata: %v", err)
	}

	if err := l.builder.Build(ctx, meta.ImageTag(), l.teamDir(meta.TeamID), meta.Entrypoint); err != nil {
		return err
	}

	l.mu.Lock()
	l.catalogue[meta.TeamID] = meta
	l.mu.Unlock()
	l.log.Info().Str("team", meta.TeamID).Str("name", meta.Name).Msg("game built")
	return nil
}

// Games implements pairing.Catalogue, in a stable order.
func (l *Launcher) Games() []games.Meta {
	l.mu.RLock()
	defer l.mu.RUnlock()
	metas := make([]games.Meta, 0, len(l.catalogue))
	for _, meta := range l.catalogue {
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].TeamID < metas[j].TeamID })
	return metas
}

// Get implements pairing.Catalogue.
func (l *Launcher) Get(teamID string) (games.Meta, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	meta, ok := l.catalogue[teamID]
	return meta, ok
}

// Contains reports whether the team has a catalogued game.
func (l *Launcher) Contains(teamID string) bool {
	_, ok := l.Get(teamID)
	return ok
}

// AddFile accepts one submitted file for a team, enforcing the size cap,
// the per-team file count and the non-strict filename rule. Replacing an
// existing file never counts against the quota.
func (l *Launcher) AddFile(teamID string, name string, data []byte) error {
	if !ValidPath(name, false) {
		return fault.Invalidf("filename %q", name)
	}
	if len(data) > MaxFileSize {
		return fault.Invalidf("file %q exceeds %d bytes", name, MaxFileSize)
	}

	dir := l.teamDir(teamID)
	target := filepath.Join(dir, filepath.FromSlash(name))
	if _, err := os.Stat(target); err != nil {
		existing, err := l.ListFiles(teamID)
		if err != nil {
			return err
		}
		if len(existing) >= MaxFiles {
			return fault.Invalidf("team %q already has %d files", teamID, MaxFiles)
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fault.Gamebattlef("create directories for %q: %v", name, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fault.Gamebattlef("write %q: %v", name, err)
	}
	return nil
}

// RemoveFile deletes a submitted file and purges any directories the
// removal left empty, up to the team's root.
func (l *Launcher) RemoveFile(teamID string, name string) error {
	if !ValidPath(name, false) {
		return fault.Invalidf("filename %q", name)
	}
	dir := l.teamDir(teamID)
	target := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return fault.NotFoundf("file %q", name)
		}
		return fault.Gamebattlef("remove %q: %v", name, err)
	}

	for parent := filepath.Dir(target); parent != dir && strings.HasPrefix(parent, dir); parent = filepath.Dir(parent) {
		if err := os.Remove(parent); err != nil {
			break
		}
	}
	return nil
}

// ListFiles returns every submitted file for the team keyed by its
// slash-joined relative path.
func (l *Launcher) ListFiles(teamID string) (map[string][]byte, error) {
	dir := l.teamDir(teamID)
	files := make(map[string][]byte)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fault.Gamebattlef("list files for %q: %v", teamID, err)
	}
	return files, nil
}

func (l *Launcher) teamDir(teamID string) string {
	return filepath.Join(l.root, teamID)
}

func (l *Launcher) metaPath(teamID string) string {
	return filepath.Join(l.root, teamID+".yaml")
}

func readMeta(path string) (games.Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return games.Meta{}, err
	}
	var meta games.Meta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return games.Meta{}, err
	}
	if meta.TeamID == "" {
		meta.TeamID = strings.TrimSuffix(filepath.Base(path), ".yaml")
	}
	if meta.Name == "" || meta.Entrypoint == "" {
		return games.Meta{}, fault.Invalidf("metadata %q incomplete", path)
	}
	return meta, nil
}
