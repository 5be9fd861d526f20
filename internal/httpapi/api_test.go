package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gamebattle/arena/internal/auth"
	"gamebattle/arena/internal/game"
	"gamebattle/arena/internal/games"
	"gamebattle/arena/internal/launch"
	"gamebattle/arena/internal/prefs"
	"gamebattle/arena/internal/rating"
	"gamebattle/arena/internal/reports"
	"gamebattle/arena/internal/sandbox"
	"gamebattle/arena/internal/session"
	"gamebattle/arena/internal/stream"
)

const testSecret = "arena-test-secret"

type fakeInstance struct {
	mu      sync.Mutex
	running bool
	out     *stream.Stream[sandbox.Frame]
	stdin   [][]byte
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{out: stream.New[sandbox.Frame]()}
}

func (f *fakeInstance) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeInstance) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stdin = append(f.stdin, data)
	return nil
}

func (f *fakeInstance) Resize(ctx context.Context, cols, rows uint) {}

func (f *fakeInstance) Output() *stream.Stream[sandbox.Frame] { return f.out }

func (f *fakeInstance) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeInstance) Stop(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.out.Close()
}

type fakeRuntime struct {
	mu        sync.Mutex
	instances []*fakeInstance
	images    []string
}

func (f *fakeRuntime) Create(ctx context.Context, image string, limits sandbox.Limits) (game.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	instance := newFakeInstance()
	f.instances = append(f.instances, instance)
	f.images = append(f.images, image)
	return instance, nil
}

type nopBuilder struct{}

func (nopBuilder) Build(ctx context.Context, tag, dir, entrypoint string) error { return nil }

type harness struct {
	handlers *HandlerSet
	server   *httptest.Server
	runtime  *fakeRuntime
	prefs    *prefs.MemoryStore
	reports  *reports.MemoryStore
	engine   *rating.Engine
}

func newTestAPI(t *testing.T, enableCompetition bool) *harness {
	t.Helper()

	roster := games.NewRoster()
	if err := roster.Replace([]games.Team{
		{ID: "team1", DisplayName: "One", MemberEmails: []string{"member1@x.com"}},
		{ID: "team2", DisplayName: "Two", MemberEmails: []string{"member2@x.com"}},
		{ID: "team3", DisplayName: "Three", MemberEmails: []string{"member3@x.com"}},
	}); err != nil {
		t.Fatalf("roster: %v", err)
	}

	launcher := launch.NewLauncher(t.TempDir(), nopBuilder{})
	for _, teamID := range []string{"team1", "team2", "team3"} {
		meta := games.Meta{Name: "Game " + teamID, TeamID: teamID, Entrypoint: "main.py"}
		if err := launcher.BuildGame(context.Background(), meta); err != nil {
			t.Fatalf("seed catalogue: %v", err)
		}
	}

	reportStore := reports.NewMemoryStore()
	preferenceStore := prefs.NewMemoryStore()
	engine := rating.NewEngine(roster, reportStore)
	if err := preferenceStore.Bind(context.Background(), engine); err != nil {
		t.Fatalf("bind: %v", err)
	}

	runtime := &fakeRuntime{}
	manager := session.NewManager(session.ManagerOptions{
		Runtime:            runtime,
		Catalogue:          launcher,
		MaxSessionsPerUser: 1,
		TTL:                time.Hour,
	})

	handlers, err := New(Options{
		Manager:           manager,
		Launcher:          launcher,
		Roster:            roster,
		Engine:            engine,
		Preferences:       preferenceStore,
		Reports:           reportStore,
		Verifier:          auth.NewVerifier(testSecret, []string{"admin@x.com"}),
		EnableCompetition: enableCompetition,
		ReportWindow:      time.Minute,
		ReportBurst:       100,
	})
	if err != nil {
		t.Fatalf("handler set: %v", err)
	}

	server := httptest.NewServer(handlers.Router())
	t.Cleanup(server.Close)
	return &harness{
		handlers: handlers,
		server:   server,
		runtime:  runtime,
		prefs:    preferenceStore,
		reports:  reportStore,
		engine:   engine,
	}
}

// instanceFor resolves the fake container backing one of a session's games.
// Launch shuffles the presentation order, so creation order is no guide; the
// image tag ties the slot back to its container.
func (h *harness) instanceFor(t *testing.T, owner string, id uuid.UUID, index int) *fakeInstance {
	t.Helper()
	s, err := h.handlers.manager.Get(owner, id)
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	image := s.Games()[index].Meta().ImageTag()
	h.runtime.mu.Lock()
	defer h.runtime.mu.Unlock()
	for i, img := range h.runtime.images {
		if img == image {
			return h.runtime.instances[i]
		}
	}
	t.Fatalf("no container for image %q", image)
	return nil
}

func token(t *testing.T, email string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": email,
		"name":  "Tester",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func (h *harness) do(t *testing.T, method, path, email string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if email != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, email))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestAuthAndErrorMapping(t *testing.T) {
	h := newTestAPI(t, true)

	if resp := h.do(t, http.MethodGet, "/sessions", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodGet, "/sessions/"+uuid.NewString(), "voter@x.com", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodGet, "/allstats", "voter@x.com", nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("admin surface as voter: %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodGet, "/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
}

func TestCreateSessionRequiresCompetition(t *testing.T) {
	h := newTestAPI(t, false)
	resp := h.do(t, http.MethodPost, "/sessions", "voter@x.com", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("competition off: %d", resp.StatusCode)
	}
}

func TestVotingFlow(t *testing.T) {
	h := newTestAPI(t, true)

	id := decodeBody[uuid.UUID](t, h.do(t, http.MethodPost, "/sessions", "voter@x.com", nil))

	public := decodeBody[session.Public](t, h.do(t, http.MethodGet, "/sessions/"+id.String(), "voter@x.com", nil))
	if len(public.Games) != 2 {
		t.Fatalf("expected a pair, got %+v", public)
	}

	// Voting before the games exit is rejected.
	if resp := h.do(t, http.MethodPost, "/sessions/"+id.String()+"/preference", "voter@x.com", map[string]any{"score_first": 1.0}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("early vote accepted: %d", resp.StatusCode)
	}

	for _, instance := range h.runtime.instances {
		instance.Stop(context.Background())
	}
	if resp := h.do(t, http.MethodPost, "/sessions/"+id.String()+"/preference", "voter@x.com", map[string]any{"score_first": 1.0}); resp.StatusCode != http.StatusOK {
		t.Fatalf("vote rejected: %d", resp.StatusCode)
	}

	read := decodeBody[map[string]float64](t, h.do(t, http.MethodGet, "/sessions/"+id.String()+"/preference", "voter@x.com", nil))
	if read["first_score"] != 1.0 {
		t.Fatalf("preference read-back: %v", read)
	}

	top := decodeBody[[]rating.Rating](t, h.do(t, http.MethodGet, "/leaderboard", "", nil))
	if len(top) != 2 {
		t.Fatalf("leaderboard after one vote: %v", top)
	}
	if top[0].Score <= top[1].Score {
		t.Fatalf("winner not first: %v", top)
	}
}

func TestOwnerCannotSeeForeignSession(t *testing.T) {
	h := newTestAPI(t, true)
	id := decodeBody[uuid.UUID](t, h.do(t, http.MethodPost, "/sessions", "voter@x.com", nil))

	if resp := h.do(t, http.MethodGet, "/sessions/"+id.String(), "other@x.com", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign session visible: %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodDelete, "/sessions/"+id.String(), "other@x.com", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign session stoppable: %d", resp.StatusCode)
	}
}

func TestReportFlow(t *testing.T) {
	h := newTestAPI(t, true)
	id := decodeBody[uuid.UUID](t, h.do(t, http.MethodPost, "/sessions", "voter@x.com", nil))

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/sessions/%s/0/report", id), "voter@x.com", map[string]any{
		"short_reason":   "buggy",
		"reason":         "crashes on start",
		"capture_output": false,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report rejected: %d", resp.StatusCode)
	}

	public := decodeBody[session.Public](t, h.do(t, http.MethodGet, "/sessions/"+id.String(), "voter@x.com", nil))
	reported := strings.TrimPrefix(public.Games[0].Name, "Game ")

	filed := decodeBody[[]reports.Report](t, h.do(t, http.MethodGet, "/reports/"+reported, "admin@x.com", nil))
	if len(filed) != 1 || filed[0].ShortReason != "buggy" {
		t.Fatalf("report not stored: %v", filed)
	}
	if resp := h.do(t, http.MethodGet, "/reports/"+reported, "voter@x.com", nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("reports visible to non-admin: %d", resp.StatusCode)
	}

	if resp := h.do(t, http.MethodPost, fmt.Sprintf("/sessions/%s/0/report", id), "voter@x.com", map[string]any{
		"short_reason": "spam",
	}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad short reason accepted: %d", resp.StatusCode)
	}
}

func TestExclusionHidesFromLeaderboard(t *testing.T) {
	h := newTestAPI(t, true)
	ctx := context.Background()

	if err := h.prefs.Set(ctx, uuid.New(), prefs.Preference{
		Games:      [2]string{"team1", "team2"},
		FirstScore: 1,
		Author:     "voter@x.com",
		Timestamp:  time.Now(),
	}); err != nil {
		t.Fatalf("seed vote: %v", err)
	}

	if resp := h.do(t, http.MethodPost, "/admin/exclude/team1", "admin@x.com", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("exclude: %d", resp.StatusCode)
	}
	top := decodeBody[[]rating.Rating](t, h.do(t, http.MethodGet, "/leaderboard", "", nil))
	for _, row := range top {
		if row.Name == "Game team1" {
			t.Fatalf("excluded game on leaderboard: %v", top)
		}
	}

	excluded := decodeBody[[]string](t, h.do(t, http.MethodGet, "/admin/excluded", "admin@x.com", nil))
	if len(excluded) != 1 || excluded[0] != "team1" {
		t.Fatalf("excluded listing: %v", excluded)
	}

	if resp := h.do(t, http.MethodPost, "/admin/include/team1", "admin@x.com", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("include: %d", resp.StatusCode)
	}
	top = decodeBody[[]rating.Rating](t, h.do(t, http.MethodGet, "/leaderboard", "", nil))
	if len(top) != 2 {
		t.Fatalf("leaderboard after include: %v", top)
	}
}

func TestStatsForVoterOutsideTeams(t *testing.T) {
	h := newTestAPI(t, true)
	record := decodeBody[map[string]any](t, h.do(t, http.MethodGet, "/stats", "stranger@x.com", nil))
	if record["permitted"] != false {
		t.Fatalf("stranger permitted: %v", record)
	}
	if record["required_accumulation"] != float64(5) {
		t.Fatalf("required accumulation: %v", record)
	}
}

func TestGameFileSurface(t *testing.T) {
	h := newTestAPI(t, false)

	resp := h.do(t, http.MethodPost, "/game", "member1@x.com", map[string]any{
		"filename": "main.py",
		"content":  "cHJpbnQoJ2hpJyk=",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add file: %d", resp.StatusCode)
	}

	files := decodeBody[[]fileRecord](t, h.do(t, http.MethodGet, "/game", "member1@x.com", nil))
	found := false
	for _, file := range files {
		if file.Path == "main.py" && file.Content == "cHJpbnQoJ2hpJyk=" {
			found = true
		}
	}
	if !found {
		t.Fatalf("uploaded file missing from listing: %v", files)
	}

	if resp := h.do(t, http.MethodDelete, "/game/main.py", "member1@x.com", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("remove file: %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodPost, "/game", "stranger@x.com", map[string]any{
		"filename": "main.py",
		"content":  "aGk=",
	}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("teamless upload accepted: %d", resp.StatusCode)
	}
}
