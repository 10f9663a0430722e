package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"egg-arena/internal/config"
	"egg-arena/internal/game"
	"egg-arena/internal/protocol"
)

// MockEngine implements EngineInterface for testing.
type MockEngine struct {
	mu       sync.Mutex
	snapshot *game.Snapshot
	joins    []string
	moves    []protocol.MovePayload
	collects []string
	leaves   []string
	joinErr  error
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		snapshot: &game.Snapshot{
			Tick: 4,
			Players: []game.Player{
				{ID: "a", Name: "Alice", Score: 30, Size: 11},
				{ID: "b", Name: "Bob", Score: 70, Size: 12},
			},
			Nutrients: []game.Nutrient{{ID: "n-1", X: 10, Y: 10, Size: 4, Color: "#4CAF50"}},
			Leaderboard: []game.LeaderboardEntry{
				{ID: "b", Name: "Bob", Score: 70},
				{ID: "a", Name: "Alice", Score: 30},
			},
			Egg:   game.Point{X: 2500, Y: 2500},
			Arena: game.Arena{Width: 5000, Height: 5000},
		},
	}
}

func (m *MockEngine) GetSnapshot() *game.Snapshot { return m.snapshot }

func (m *MockEngine) Stats() game.Stats {
	return game.Stats{Tick: m.snapshot.Tick, Players: len(m.snapshot.Players), Nutrients: len(m.snapshot.Nutrients)}
}

func (m *MockEngine) Join(ctx context.Context, connID string, jp protocol.JoinPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, connID)
	return m.joinErr
}

func (m *MockEngine) Move(ctx context.Context, connID string, mp protocol.MovePayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moves = append(m.moves, mp)
	return nil
}

func (m *MockEngine) Collect(ctx context.Context, connID, nutrientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collects = append(m.collects, nutrientID)
	return nil
}

func (m *MockEngine) Leave(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves = append(m.leaves, connID)
}

func testRouterConfig(t *testing.T, engine EngineInterface) RouterConfig {
	t.Helper()
	limiter := NewIPRateLimiter(config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000})
	t.Cleanup(limiter.Stop)
	return RouterConfig{
		Engine:      engine,
		RateLimiter: limiter,
		Logger:      zap.NewNop(),
	}
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestAPI_GetState(t *testing.T) {
	ts := httptest.NewServer(NewRouter(testRouterConfig(t, NewMockEngine())))
	defer ts.Close()

	var snap game.Snapshot
	resp := getJSON(t, ts.URL+"/api/state", &snap)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Expected JSON content type, got %s", resp.Header.Get("Content-Type"))
	}
	if snap.Tick != 4 || len(snap.Players) != 2 || len(snap.Nutrients) != 1 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
	if snap.Egg.X != 2500 || snap.Arena.Width != 5000 {
		t.Errorf("Unexpected geometry egg=%+v arena=%+v", snap.Egg, snap.Arena)
	}
}

func TestAPI_GetLeaderboard(t *testing.T) {
	ts := httptest.NewServer(NewRouter(testRouterConfig(t, NewMockEngine())))
	defer ts.Close()

	var board []game.LeaderboardEntry
	getJSON(t, ts.URL+"/api/leaderboard", &board)
	if len(board) != 2 || board[0].Name != "Bob" {
		t.Errorf("Unexpected leaderboard %+v", board)
	}
}

func TestAPI_GetPlayer(t *testing.T) {
	ts := httptest.NewServer(NewRouter(testRouterConfig(t, NewMockEngine())))
	defer ts.Close()

	var p game.Player
	resp := getJSON(t, ts.URL+"/api/players/b", &p)
	if resp.StatusCode != http.StatusOK || p.Name != "Bob" {
		t.Errorf("Expected Bob, got %d %+v", resp.StatusCode, p)
	}

	resp = getJSON(t, ts.URL+"/api/players/zzz", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestAPI_GetStats(t *testing.T) {
	ts := httptest.NewServer(NewRouter(testRouterConfig(t, NewMockEngine())))
	defer ts.Close()

	var stats statsResponse
	getJSON(t, ts.URL+"/api/stats", &stats)
	if stats.Engine.Players != 2 || stats.Engine.Tick != 4 {
		t.Errorf("Unexpected engine stats %+v", stats.Engine)
	}
	if stats.RateLimit.Allowed == 0 {
		t.Error("Expected the stats request itself to be counted")
	}
}

func TestAPI_Health(t *testing.T) {
	ts := httptest.NewServer(NewRouter(testRouterConfig(t, NewMockEngine())))
	defer ts.Close()

	var body map[string]string
	resp := getJSON(t, ts.URL+"/healthz", &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("Unexpected health response %d %v", resp.StatusCode, body)
	}
}

func TestAPI_RateLimited(t *testing.T) {
	cfg := testRouterConfig(t, NewMockEngine())
	limiter := NewIPRateLimiter(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	defer limiter.Stop()
	cfg.RateLimiter = limiter

	ts := httptest.NewServer(NewRouter(cfg))
	defer ts.Close()

	var got429 bool
	for i := 0; i < 5; i++ {
		resp := getJSON(t, ts.URL+"/healthz", nil)
		if resp.StatusCode == http.StatusTooManyRequests {
			got429 = true
			if resp.Header.Get("Retry-After") == "" {
				t.Error("Expected Retry-After header")
			}
		}
	}
	if !got429 {
		t.Error("Expected a 429 after exceeding the burst")
	}
	if limiter.Stats().Rejected == 0 {
		t.Error("Expected rejections to be counted")
	}
}

func TestAPI_StaticDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>arena</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testRouterConfig(t, NewMockEngine())
	cfg.StaticDir = dir
	ts := httptest.NewServer(NewRouter(cfg))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for static index, got %d", resp.StatusCode)
	}

	// API routes still win over the file server.
	if resp := getJSON(t, ts.URL+"/healthz", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected healthz 200, got %d", resp.StatusCode)
	}
}

func TestAPI_SocketIOWithoutUpgrade(t *testing.T) {
	cfg := testRouterConfig(t, NewMockEngine())
	cfg.Hub = NewHub(config.DefaultServer(), zaptest.NewLogger(t))
	ts := httptest.NewServer(NewRouter(cfg))
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/socket.io/", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for polling request, got %d", resp.StatusCode)
	}
}
