package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/typeracehq/race-server/internal/code"
	"github.com/typeracehq/race-server/internal/hub"
	"github.com/typeracehq/race-server/internal/race"
	"github.com/typeracehq/race-server/internal/room"
)

const stateTimeout = 2 * time.Second

type createRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type createResponse struct {
	Code string `json:"code"`
}

// CreateRoom allocates a fresh room owned by the requesting user. The user
// still joins over the websocket; until then the room holds their seat.
func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.DisplayName == "" {
			http.Error(w, "user_id and display_name required", http.StatusBadRequest)
			return
		}

		reply := make(chan hub.CreateReply, 1)
		h.Inbox() <- hub.CreateRoom{HostID: req.UserID, HostName: req.DisplayName, Reply: reply}
		res := <-reply
		if res.Err != nil {
			if errors.Is(res.Err, hub.ErrAllocationFailed) {
				http.Error(w, "could not allocate room, try again", http.StatusServiceUnavailable)
				return
			}
			log.Error("creating room", zap.Error(res.Err))
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createResponse{Code: res.Code})
	}
}

type snapshotPlayer struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Progress    float64 `json:"progress"`
	WPM         float64 `json:"wpm"`
	Finished    bool    `json:"finished"`
}

type snapshotResponse struct {
	Code         string           `json:"code"`
	HostID       string           `json:"host_id"`
	HostUsername string           `json:"host_username"`
	Players      []snapshotPlayer `json:"players"`
	Status       string           `json:"status"`
	CodeSnippet  string           `json:"code_snippet,omitempty"`
	StartTime    int64            `json:"start_time,omitempty"`
}

// RoomSnapshot is a point-in-time read of one room's document, for
// reconnect-and-view style clients. Not a live subscription.
func RoomSnapshot(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomCode := chi.URLParam(r, "code")
		if !code.IsWellFormed(roomCode) {
			http.Error(w, "malformed room code", http.StatusBadRequest)
			return
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{Code: roomCode, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		stateReply := make(chan race.Room, 1)
		rm.Inbox() <- room.GetState{Reply: stateReply}
		var snap race.Room
		select {
		case snap = <-stateReply:
		case <-time.After(stateTimeout):
			http.Error(w, "room unavailable", http.StatusServiceUnavailable)
			return
		}

		resp := snapshotResponse{
			Code:        snap.Code,
			HostID:      snap.HostID,
			Players:     make([]snapshotPlayer, 0, len(snap.Players)),
			Status:      string(snap.Status),
			CodeSnippet: snap.Snippet,
			StartTime:   snap.RaceStartAtMs,
		}
		for _, p := range snap.Players {
			if p.ID == snap.HostID {
				resp.HostUsername = p.DisplayName
			}
			resp.Players = append(resp.Players, snapshotPlayer{
				ID:          p.ID,
				DisplayName: p.DisplayName,
				Progress:    p.Progress,
				WPM:         p.WPM,
				Finished:    p.Finished,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
