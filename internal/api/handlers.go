package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"egg-arena/internal/game"
)

// Handler methods for routerHandlers. Reads are served from the engine's
// published snapshot and never touch live world state.

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.GetSnapshot())
}

func (h *routerHandlers) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	board := h.engine.GetSnapshot().Leaderboard
	if board == nil {
		board = []game.LeaderboardEntry{}
	}
	writeJSON(w, board)
}

func (h *routerHandlers) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.engine.GetSnapshot().Player(id)
	if !ok {
		writeError(w, "player not found", http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

type statsResponse struct {
	Engine      game.Stats   `json:"engine"`
	Connections int          `json:"connections"`
	RateLimit   LimiterStats `json:"rateLimit"`
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Engine:    h.engine.Stats(),
		RateLimit: h.limiter.Stats(),
	}
	if h.hub != nil {
		resp.Connections = h.hub.ClientCount()
	}
	writeJSON(w, resp)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
