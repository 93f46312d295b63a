package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/escaperoom/internal/admin"
	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/game"
	"github.com/playperu/escaperoom/internal/storage"
)

type AdminMessageRequest struct {
	Message string `json:"message"`
}

type AdminDifficultyRequest struct {
	Direction string `json:"direction"`
}

type AdminTimeRequest struct {
	Minutes int `json:"minutes"`
}

// AdminChangeResponse reports an admin mutation. The team's running game
// picks the change up on its next sync.
type AdminChangeResponse struct {
	Team         SessionSummary     `json:"team"`
	Changed      bool               `json:"changed"`
	HintsGranted int                `json:"hintsGranted,omitempty"`
	Sync         storage.SyncStatus `json:"sync"`
}

type AdminBroadcastResponse struct {
	Recipients int                `json:"recipients"`
	Sync       storage.SyncStatus `json:"sync"`
}

type AdminActionItem struct {
	ID        string             `json:"id"`
	TeamID    string             `json:"teamId"`
	Type      storage.ActionType `json:"type"`
	Data      any                `json:"data,omitempty"`
	Message   string             `json:"message"`
	Timestamp string             `json:"timestamp"`
}

func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admin.ErrTeamNotFound):
		writeError(w, http.StatusNotFound, "team not found")
	case errors.Is(err, admin.ErrSessionFinished):
		writeError(w, http.StatusConflict, "the team's game is no longer active")
	case errors.Is(err, admin.ErrEmptyMessage), errors.Is(err, admin.ErrMessageTooLong),
		errors.Is(err, admin.ErrInvalidMinutes), errors.Is(err, escaperoom.ErrUnknownDirection),
		errors.Is(err, escaperoom.ErrInvalidContent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// liveSummaries lists stored sessions with the running controllers' state
// laid over them.
func liveSummaries(r *http.Request, svc *admin.Service, games *game.Manager, activeOnly bool) []SessionSummary {
	recs, _ := svc.Sessions(r.Context(), false)
	out := make([]SessionSummary, 0, len(recs))
	for _, rec := range recs {
		sum := summaryView(rec)
		if c, ok := games.Peek(rec.SessionID); ok {
			sum = overlayLive(sum, c.Snapshot())
		}
		if activeOnly && sum.Status != escaperoom.StatusActive {
			continue
		}
		out = append(out, sum)
	}
	return out
}

func handleAdminSessions(svc *admin.Service, games *game.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := r.URL.Query().Get("active") == "true"
		writeJSON(w, http.StatusOK, liveSummaries(r, svc, games, activeOnly))
	}
}

func handleAdminHint(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminMessageRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		st, err := svc.SendHint(r.Context(), chi.URLParam(r, "teamID"), req.Message)
		if err != nil {
			writeAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]storage.SyncStatus{"sync": st})
	}
}

func handleAdminDifficulty(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminDifficultyRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		dir, err := escaperoom.ParseDirection(req.Direction)
		if err != nil {
			writeAdminError(w, err)
			return
		}
		ch, err := svc.AdjustDifficulty(r.Context(), chi.URLParam(r, "teamID"), dir)
		if err != nil {
			writeAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, changeView(ch))
	}
}

func handleAdminTime(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminTimeRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ch, err := svc.ExtendTime(r.Context(), chi.URLParam(r, "teamID"), req.Minutes)
		if err != nil {
			writeAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, changeView(ch))
	}
}

func changeView(ch admin.Change) AdminChangeResponse {
	return AdminChangeResponse{
		Team:         summaryView(ch.Team),
		Changed:      ch.Changed,
		HintsGranted: ch.HintsGranted,
		Sync:         ch.Sync,
	}
}

func handleAdminBroadcast(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminMessageRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		n, st, err := svc.BroadcastMessage(r.Context(), req.Message)
		if err != nil {
			writeAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AdminBroadcastResponse{Recipients: n, Sync: st})
	}
}

// handleAdminActions reads the audit log. Filters: teamId, type (repeatable)
// and limit.
func handleAdminActions(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := storage.ActionFilter{Limit: 200}
		if id := q.Get("teamId"); id != "" {
			f.TeamIDs = []string{id}
		}
		for _, t := range q["type"] {
			f.Types = append(f.Types, storage.ActionType(t))
		}
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 1000 {
				writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
				return
			}
			f.Limit = n
		}

		actions := svc.Actions(r.Context(), f)
		out := make([]AdminActionItem, 0, len(actions))
		for _, a := range actions {
			item := AdminActionItem{
				ID:        a.ID,
				TeamID:    a.TeamID,
				Type:      a.Type,
				Message:   a.Message,
				Timestamp: a.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
			}
			if len(a.Data) > 0 {
				item.Data = a.Data
			}
			out = append(out, item)
		}
		writeJSON(w, http.StatusOK, out)
	}
}
