package launch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gamebattle/arena/internal/fault"
	"gamebattle/arena/internal/games"
)

type fakeBuilder struct {
	built []string
	fail  map[string]bool
}

func (f *fakeBuilder) Build(ctx context.Context, tag, dir, entrypoint string) error {
	if f.fail[tag] {
		return fault.Gamebattlef("build %s failed", tag)
	}
	f.built = append(f.built, tag)
	return nil
}

func TestFilenameComponentRules(t *testing.T) {
	cases := []struct {
		name      string
		strict    bool
		nonStrict bool
	}{
		{"main.py", true, true},
		{"my game.py", false, true},
		{"snake_v2-final.txt", true, true},
		{"...", false, false},
		{"..", false, false},
		{"", false, false},
		{"café.py", false, false},
		{"a/b", false, false},
	}
	for _, c := range cases {
		if got := ValidComponent(c.name, true); got != c.strict {
			t.Fatalf("strict %q: got %v, want %v", c.name, got, c.strict)
		}
		if got := ValidComponent(c.name, false); got != c.nonStrict {
			t.Fatalf("non-strict %q: got %v, want %v", c.name, got, c.nonStrict)
		}
	}
}

func TestPathRules(t *testing.T) {
	if !ValidPath("src/engine/main.py", false) {
		t.Fatalf("nested path rejected")
	}
	deep := "a"
	for i := 0; i < 10; i++ {
		deep += "/a"
	}
	if ValidPath(deep, false) {
		t.Fatalf("11-component path accepted")
	}
	if ValidPath("src//main.py", false) {
		t.Fatalf("empty component accepted")
	}
	if ValidPath("../escape.py", false) {
		t.Fatalf("dot-dot component accepted")
	}
}

func TestAddListRemoveFiles(t *testing.T) {
	l := NewLauncher(t.TempDir(), &fakeBuilder{})

	if err := l.AddFile("team1", "src/main.py", []byte("print('hi')")); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	files, err := l.ListFiles("team1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !bytes.Equal(files["src/main.py"], []byte("print('hi')")) {
		t.Fatalf("unexpected listing: %v", files)
	}

	if err := l.RemoveFile("team1", "src/main.py"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	// The now-empty src/ directory must be gone too.
	if _, err := os.Stat(filepath.Join(l.root, "team1", "src")); !os.IsNotExist(err) {
		t.Fatalf("empty ancestor directory survived removal")
	}
	if err := l.RemoveFile("team1", "src/main.py"); !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected not-found on double remove, got %v", err)
	}
}

func TestAddFileRejectsOversizeAndBadNames(t *testing.T) {
	l := NewLauncher(t.TempDir(), &fakeBuilder{})

	if err := l.AddFile("team1", "big.bin", make([]byte, MaxFileSize+1)); !errors.Is(err, fault.ErrInvalidInput) {
		t.Fatalf("oversize accepted: %v", err)
	}
	if err := l.AddFile("team1", "../escape.py", []byte("x")); !errors.Is(err, fault.ErrInvalidInput) {
		t.Fatalf("traversal accepted: %v", err)
	}
}

func TestAddFileEnforcesCount(t *testing.T) {
	l := NewLauncher(t.TempDir(), &fakeBuilder{})
	for i := 0; i < MaxFiles; i++ {
		if err := l.AddFile("team1", fmt.Sprintf("f%d.txt", i), []byte("x")); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}
	if err := l.AddFile("team1", "overflow.txt", []byte("x")); !errors.Is(err, fault.ErrInvalidInput) {
		t.Fatalf("file %d accepted: %v", MaxFiles+1, err)
	}
	// Overwriting an existing file is not a new file.
	if err := l.AddFile("team1", "f0.txt", []byte("y")); err != nil {
		t.Fatalf("overwrite rejected: %v", err)
	}
}

func TestBuildGameUpsertsCatalogue(t *testing.T) {
	builder := &fakeBuilder{}
	l := NewLauncher(t.TempDir(), builder)

	meta := games.Meta{Name: "Snake", TeamID: "team1", Entrypoint: "main.py"}
	if err := l.BuildGame(context.Background(), meta); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !l.Contains("team1") {
		t.Fatalf("catalogue missing built game")
	}

	renamed := games.Meta{Name: "Snake II", TeamID: "team1", Entrypoint: "main.py"}
	if err := l.BuildGame(context.Background(), renamed); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	got, _ := l.Get("team1")
	if got.Name != "Snake II" {
		t.Fatalf("upsert kept old entry: %+v", got)
	}
	if len(l.Games()) != 1 {
		t.Fatalf("duplicate catalogue entries: %v", l.Games())
	}
}

func TestBuildGameRejectsLooseEntrypoint(t *testing.T) {
	l := NewLauncher(t.TempDir(), &fakeBuilder{})
	meta := games.Meta{Name: "Snake", TeamID: "team1", Entrypoint: "my game.py"}
	if err := l.BuildGame(context.Background(), meta); !errors.Is(err, fault.ErrInvalidInput) {
		t.Fatalf("space in entrypoint accepted: %v", err)
	}
}

func TestScanSkipsDamagedAndUnbuildable(t *testing.T) {
	root := t.TempDir()
	writeMeta := func(team, body string) {
		if err := os.WriteFile(filepath.Join(root, team+".yaml"), []byte(body), 0o644); err != nil {
			t.Fatalf("seed metadata: %v", err)
		}
	}
	writeMeta("team1", "name: Snake\nteam_id: team1\nfile: main.py\n")
	writeMeta("team2", "name: Pong\nteam_id: team2\nfile: pong.py\n")
	writeMeta("broken", ":::")

	builder := &fakeBuilder{fail: map[string]bool{"gamebattle-team2": true}}
	l := NewLauncher(root, builder)
	if err := l.Scan(context.Background()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !l.Contains("team1") {
		t.Fatalf("healthy game missing after scan")
	}
	if l.Contains("team2") || l.Contains("broken") {
		t.Fatalf("bad entries made it into the catalogue: %v", l.Games())
	}
}
