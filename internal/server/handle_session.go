package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/game"
	"github.com/playperu/escaperoom/internal/locale"
	"github.com/playperu/escaperoom/internal/settings"
)

type CreateSessionRequest struct {
	TeamName   string `json:"teamName"`
	Theme      string `json:"theme"`
	Difficulty string `json:"difficulty"`
}

type CreateSessionResponse struct {
	ResultResponse
	ResumeURL string `json:"resumeUrl"`
}

type NavigateRequest struct {
	Action string `json:"action"`
	Stage  int    `json:"stage,omitempty"`
}

type CertificateResponse struct {
	escaperoom.Certificate
	SiteName string `json:"siteName"`
	Footer   string `json:"footer"`
}

func resumeURL(publicURL, id string) string {
	return strings.TrimRight(publicURL, "/") + "/resume/" + id
}

func handleThemes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, escaperoom.Builtin().Themes())
	}
}

func handleCreateSession(games *game.Manager, tr *locale.Translator, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		difficulty, err := escaperoom.ParseDifficulty(req.Difficulty)
		if err != nil {
			writeError(w, http.StatusBadRequest, "difficulty must be easy, medium, or hard")
			return
		}

		c, res, err := games.Create(r.Context(), escaperoom.Config{
			Theme:      escaperoom.Theme(strings.TrimSpace(req.Theme)),
			Difficulty: difficulty,
			TeamName:   req.TeamName,
		})
		if errors.Is(err, escaperoom.ErrInvalidTeamName) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		res.Changed = true
		writeJSON(w, http.StatusCreated, CreateSessionResponse{
			ResultResponse: resultView(res, tr),
			ResumeURL:      resumeURL(publicURL, c.ID()),
		})
	}
}

func handleGetSession(tr *locale.Translator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resultView(controllerFrom(r).Snapshot(), tr))
	}
}

func handleEndSession(tr *locale.Translator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resultView(controllerFrom(r).End(r.Context()), tr))
	}
}

func handleUseHint(tr *locale.Translator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resultView(controllerFrom(r).UseHint(r.Context()), tr))
	}
}

func handleNavigate(tr *locale.Translator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NavigateRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		action := game.NavAction(strings.ToLower(strings.TrimSpace(req.Action)))
		switch action {
		case game.NavNext, game.NavPrevious:
		case game.NavGoTo:
			if req.Stage < 1 || req.Stage > escaperoom.TotalStages {
				writeError(w, http.StatusBadRequest, "stage must be between 1 and 6")
				return
			}
		default:
			writeError(w, http.StatusBadRequest, "action must be next, previous, or goto")
			return
		}

		writeJSON(w, http.StatusOK, resultView(controllerFrom(r).Navigate(r.Context(), action, req.Stage), tr))
	}
}

func handleCertificate(reg *settings.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := controllerFrom(r).Snapshot()
		cert, err := escaperoom.NewCertificate(res.Session)
		if errors.Is(err, escaperoom.ErrNotCompleted) {
			writeError(w, http.StatusConflict, "the game is not complete yet")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		site := reg.Current()
		writeJSON(w, http.StatusOK, CertificateResponse{
			Certificate: cert,
			SiteName:    site.SiteName,
			Footer:      site.CertificateFooter,
		})
	}
}

func handleSettings(reg *settings.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reg.Current())
	}
}
