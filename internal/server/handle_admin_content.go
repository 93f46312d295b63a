package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/escaperoom/internal/admin"
	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/storage"
)

type ContentFields struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Backstory   string `json:"backstory"`
}

type StageContent struct {
	StageNumber int `json:"stageNumber"`
	ContentFields
	Overridden bool          `json:"overridden"`
	Default    ContentFields `json:"default"`
}

type ThemeContentResponse struct {
	Theme  escaperoom.ThemeInfo `json:"theme"`
	Stages []StageContent       `json:"stages"`
}

// ThemeContentRequest replaces every override of a theme. Fields left out
// fall back to the built-in text.
type ThemeContentRequest struct {
	Stages map[int]escaperoom.Override `json:"stages"`
}

type ContentSaveResponse struct {
	Sync storage.SyncStatus `json:"sync"`
}

func themeParam(w http.ResponseWriter, r *http.Request) (escaperoom.ThemeInfo, bool) {
	info, ok := escaperoom.Builtin().Theme(escaperoom.Theme(chi.URLParam(r, "theme")))
	if !ok {
		writeError(w, http.StatusNotFound, "theme not found")
	}
	return info, ok
}

func handleAdminGetContent(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := themeParam(w, r)
		if !ok {
			return
		}

		catalog := escaperoom.Builtin()
		overrides := svc.Content().Overrides()
		resp := ThemeContentResponse{Theme: info, Stages: make([]StageContent, 0, escaperoom.TotalStages)}
		for stage := 1; stage <= escaperoom.TotalStages; stage++ {
			base, _ := catalog.Puzzle(info.ID, stage)
			eff := svc.Content().Resolve(info.ID, stage)
			_, overridden := overrides.Get(info.ID, stage)
			resp.Stages = append(resp.Stages, StageContent{
				StageNumber:   stage,
				ContentFields: ContentFields{Title: eff.Title, Description: eff.Description, Backstory: eff.Backstory},
				Overridden:    overridden,
				Default:       ContentFields{Title: base.Title, Description: base.Description, Backstory: base.Backstory},
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleAdminPutContent(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := themeParam(w, r)
		if !ok {
			return
		}
		var req ThemeContentRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		st, err := svc.SaveContent(r.Context(), info.ID, req.Stages)
		if err != nil {
			writeAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ContentSaveResponse{Sync: st})
	}
}

func handleAdminResetContent(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := themeParam(w, r)
		if !ok {
			return
		}
		st, err := svc.ResetContent(r.Context(), info.ID)
		if err != nil {
			writeAdminError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ContentSaveResponse{Sync: st})
	}
}

func handleAdminExportContent(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := svc.ExportContent()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		name := "escaperoom-content-" + time.Now().UTC().Format("20060102") + ".json"
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func handleAdminImportContent(svc *admin.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		st, err := svc.ImportContent(r.Context(), data)
		if errors.Is(err, escaperoom.ErrInvalidContent) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, ContentSaveResponse{Sync: st})
	}
}
