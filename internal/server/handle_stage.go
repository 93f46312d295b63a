package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/locale"
)

type AnswerRequest struct {
	Answer string `json:"answer"`
}

type ProgressRequest struct {
	Progress int `json:"progress"`
}

func stageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "stage"))
	if err != nil || n < 1 || n > escaperoom.TotalStages {
		writeError(w, http.StatusNotFound, "stage not found")
		return 0, false
	}
	return n, true
}

func handleGetStage(tr *locale.Translator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage, ok := stageParam(w, r)
		if !ok {
			return
		}
		c := controllerFrom(r)
		p, unlocked := c.Puzzle(stage)
		writeJSON(w, http.StatusOK, stageView(p, c.Snapshot().Session, unlocked, tr))
	}
}

func handleAnswer(tr *locale.Translator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage, ok := stageParam(w, r)
		if !ok {
			return
		}
		var req AnswerRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		// An empty answer is an advisory, not a bad request.
		res := controllerFrom(r).SubmitAnswer(r.Context(), stage, req.Answer)
		writeJSON(w, http.StatusOK, resultView(res, tr))
	}
}

func handleReveal(tr *locale.Translator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage, ok := stageParam(w, r)
		if !ok {
			return
		}
		c := controllerFrom(r)
		res := c.RevealAnswer(r.Context(), stage)
		resp := resultView(res, tr)
		if resp.Answer != nil && resp.Answer.Revealed {
			p, _ := c.Puzzle(stage)
			resp.Answer.Solution = p.Solution()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleProgress(tr *locale.Translator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage, ok := stageParam(w, r)
		if !ok {
			return
		}
		var req ProgressRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		writeJSON(w, http.StatusOK, resultView(controllerFrom(r).UpdateProgress(r.Context(), stage, req.Progress), tr))
	}
}
