package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/pocketplay/scorerace-backend/internal/game"
	"github.com/pocketplay/scorerace-backend/internal/hub"
	"github.com/pocketplay/scorerace-backend/internal/room"
)

type createMatchRequest struct {
	GameType string `json:"game_type"`
}

type createMatchResponse struct {
	MatchID  string `json:"match_id"`
	GameType string `json:"game_type"`
}

// CreateMatch allocates a match id and spins up its room. The invite layer
// distributes the id to both players out of band.
func CreateMatch(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createMatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		cfg, ok := game.Lookup(req.GameType)
		if !ok {
			http.Error(w, "unknown game type", http.StatusBadRequest)
			return
		}
		if !cfg.Realtime {
			http.Error(w, "game type is not realtime", http.StatusUnprocessableEntity)
			return
		}

		matchID := uuid.NewString()
		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.EnsureRoom{MatchID: matchID, Game: cfg, Reply: reply}
		if <-reply == nil {
			http.Error(w, "failed to create match", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createMatchResponse{MatchID: matchID, GameType: cfg.Key})
	}
}

type transportResponse struct {
	ResolvedMode    *string `json:"resolved_mode"`
	FirestoreGameID *string `json:"firestore_game_id"`
}

// ResolveTransport exposes the pure client-side resolution over HTTP:
// `GET /transport?game=<key>[&match=<id>]`. Nulls mirror the absent invite
// context the mobile client sees.
func ResolveTransport(w http.ResponseWriter, r *http.Request) {
	res := game.ResolveTransport(r.URL.Query().Get("game"), r.URL.Query().Get("match"))

	var resp transportResponse
	if res.Mode != game.ModeNone {
		mode := string(res.Mode)
		resp.ResolvedMode = &mode
	}
	if res.FirestoreGameID != "" {
		id := res.FirestoreGameID
		resp.FirestoreGameID = &id
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
