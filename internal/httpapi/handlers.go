package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/werewolf-backend/internal/engine"
	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/room"
	"github.com/DoyleJ11/werewolf-backend/internal/store"
	"github.com/DoyleJ11/werewolf-backend/pkg/types"
)

// GameLister is the read side of the game archive.
type GameLister interface {
	RecentGames(ctx context.Context, limit int) ([]store.GameRecord, error)
}

type roomResponse struct {
	Version int               `json:"version"`
	Room    engine.RoomView   `json:"room"`
	Users   []engine.UserView `json:"users"`
}

// GetRoom serves the public projection of a live room.
func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		id := chi.URLParam(r, "id")
		rm, err := h.Get(ctx, id)
		if errors.Is(err, hub.ErrRoomNotFound) {
			writeError(w, http.StatusNotFound, "RoomNotFound", "no room with id "+id)
			return
		}
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "Unavailable", err.Error())
			return
		}

		reply := make(chan room.View, 1)
		if !rm.Send(ctx, room.GetState{Reply: reply}) {
			writeError(w, http.StatusNotFound, "RoomNotFound", "no room with id "+id)
			return
		}
		select {
		case v := <-reply:
			view := engine.Redact(v.State, "")
			writeJSON(w, http.StatusOK, roomResponse{Version: v.Version, Room: view.Room, Users: view.Users})
		case <-rm.Done():
			writeError(w, http.StatusNotFound, "RoomNotFound", "no room with id "+id)
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "Unavailable", ctx.Err().Error())
		}
	}
}

const (
	defaultGamesLimit = 20
	maxGamesLimit     = 100
)

// ListGames serves the most recent archived games.
func ListGames(games GameLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultGamesLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "BadRequest", "limit must be a positive integer")
				return
			}
			limit = min(n, maxGamesLimit)
		}

		list, err := games.RecentGames(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal", "could not load games")
			return
		}
		if list == nil {
			list = []store.GameRecord{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, types.ServerMessage{Type: "error", Error: &types.Error{Code: code, Message: message}})
}
