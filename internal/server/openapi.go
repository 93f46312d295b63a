package server

import (
	"encoding/json"
	"net/http"
	"time"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/handler/health"
	"github.com/playperu/escaperoom/internal/settings"
)

// Request shapes for the document only: path and query parameters next to
// the JSON body they travel with.
type (
	sessionParams struct {
		ID string `path:"id" format:"uuid"`
	}
	messagesParams struct {
		ID    string    `path:"id" format:"uuid"`
		Since time.Time `query:"since"`
	}
	navigateParams struct {
		ID     string `path:"id" format:"uuid"`
		Action string `json:"action" enum:"next,previous,goto"`
		Stage  int    `json:"stage,omitempty" minimum:"1" maximum:"6"`
	}
	stageParams struct {
		ID    string `path:"id" format:"uuid"`
		Stage int    `path:"stage" minimum:"1" maximum:"6"`
	}
	answerParams struct {
		ID     string `path:"id" format:"uuid"`
		Stage  int    `path:"stage" minimum:"1" maximum:"6"`
		Answer string `json:"answer"`
	}
	progressParams struct {
		ID       string `path:"id" format:"uuid"`
		Stage    int    `path:"stage" minimum:"1" maximum:"6"`
		Progress int    `json:"progress" minimum:"0" maximum:"100"`
	}
	sessionListParams struct {
		Active bool `query:"active"`
	}
	actionListParams struct {
		TeamID string   `query:"teamId"`
		Types  []string `query:"type"`
		Limit  int      `query:"limit" minimum:"1" maximum:"1000" default:"200"`
	}
	teamMessageParams struct {
		TeamID  string `path:"teamID"`
		Message string `json:"message" maxLength:"500"`
	}
	teamDifficultyParams struct {
		TeamID    string `path:"teamID"`
		Direction string `json:"direction" enum:"easier,harder"`
	}
	teamTimeParams struct {
		TeamID  string `path:"teamID"`
		Minutes int    `json:"minutes" minimum:"1"`
	}
	themeParams struct {
		Theme string `path:"theme"`
	}
	themeContentParams struct {
		Theme  string                      `path:"theme"`
		Stages map[int]escaperoom.Override `json:"stages"`
	}
)

type operation struct {
	method, path, summary, description string
	req                                any
	resp                               any
	status                             int
	errors                             []int
	contentType                        string
}

var operations = []operation{
	{method: http.MethodGet, path: "/healthz", summary: "Health check",
		description: "Reports each dependency. Optional ones (primary store, Redis) only degrade the result.",
		resp:        health.Response{}, errors: []int{http.StatusServiceUnavailable}},

	// Player
	{method: http.MethodGet, path: "/api/themes", summary: "List themes",
		description: "Themes offered on the setup screen.",
		resp:        []escaperoom.ThemeInfo{}},
	{method: http.MethodGet, path: "/api/settings", summary: "Site settings",
		resp: settings.Settings{}},
	{method: http.MethodPost, path: "/api/sessions", summary: "Start a game",
		description: "Creates a session on stage 1 with the difficulty's time and hint budget.",
		req:         CreateSessionRequest{}, resp: CreateSessionResponse{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest}},
	{method: http.MethodGet, path: "/api/sessions/{id}", summary: "Resume a game",
		description: "Returns the session. A well-formed id no store knows resumes as a demo session.",
		req:         sessionParams{}, resp: ResultResponse{}, errors: []int{http.StatusBadRequest}},
	{method: http.MethodGet, path: "/api/sessions/{id}/stages/{stage}", summary: "Get a stage",
		description: "Locked stages return only their number and title.",
		req:         stageParams{}, resp: StageResponse{}, errors: []int{http.StatusBadRequest, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/sessions/{id}/stages/{stage}/answer", summary: "Submit an answer",
		description: "Answers are compared case-insensitively after trimming. Wrong answers change nothing.",
		req:         answerParams{}, resp: ResultResponse{}, errors: []int{http.StatusBadRequest, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/sessions/{id}/stages/{stage}/reveal", summary: "Reveal an answer",
		description: "Solves the stage and records the reveal. Idempotent.",
		req:         stageParams{}, resp: ResultResponse{}, errors: []int{http.StatusBadRequest, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/sessions/{id}/stages/{stage}/progress", summary: "Record progress",
		req: progressParams{}, resp: ResultResponse{}, errors: []int{http.StatusBadRequest, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/sessions/{id}/hints", summary: "Use a hint",
		req: sessionParams{}, resp: ResultResponse{}, errors: []int{http.StatusBadRequest}},
	{method: http.MethodPost, path: "/api/sessions/{id}/navigate", summary: "Move between stages",
		description: "Moving forward requires the previous stage to be solved.",
		req:         navigateParams{}, resp: ResultResponse{}, errors: []int{http.StatusBadRequest}},
	{method: http.MethodPost, path: "/api/sessions/{id}/end", summary: "End the game",
		req: sessionParams{}, resp: ResultResponse{}, errors: []int{http.StatusBadRequest}},
	{method: http.MethodGet, path: "/api/sessions/{id}/certificate", summary: "Completion certificate",
		req: sessionParams{}, resp: CertificateResponse{}, errors: []int{http.StatusBadRequest, http.StatusConflict}},
	{method: http.MethodGet, path: "/api/sessions/{id}/messages", summary: "Messages from the game master",
		req: messagesParams{}, resp: []MessageResponse{}, errors: []int{http.StatusBadRequest}},
	{method: http.MethodGet, path: "/api/sessions/{id}/events", summary: "SSE event stream",
		description: "Server-Sent Events for the session. The first event is the current state.",
		req:         sessionParams{}, contentType: "text/event-stream"},
	{method: http.MethodGet, path: "/api/sessions/{id}/qr", summary: "Resume QR code",
		req: sessionParams{}, contentType: "image/png", errors: []int{http.StatusBadRequest}},

	// Admin
	{method: http.MethodPost, path: "/api/admin/login", summary: "Admin login",
		description: "Authenticate with email and password. Sets admin_session cookie.",
		req:         AdminLoginRequest{}, resp: AdminMeResponse{}, errors: []int{http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/logout", summary: "Admin logout",
		description: "Clears admin session and cookie.", resp: AdminLogoutResponse{}},
	{method: http.MethodGet, path: "/api/admin/me", summary: "Current admin",
		resp: AdminMeResponse{}, errors: []int{http.StatusUnauthorized}},
	{method: http.MethodGet, path: "/api/admin/sessions", summary: "List sessions",
		description: "Stored sessions with live state laid over them. ?active=true leaves out finished games.",
		req:         sessionListParams{}, resp: []SessionSummary{}, errors: []int{http.StatusUnauthorized}},
	{method: http.MethodGet, path: "/api/admin/monitor", summary: "Live monitor",
		description: "WebSocket pushing MonitorFrame messages.",
		resp:        MonitorFrame{}, status: http.StatusSwitchingProtocols, errors: []int{http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/teams/{teamID}/hint", summary: "Send a hint",
		description: "Leaves a message for the team. Does not change the hint budget.",
		req:         teamMessageParams{}, errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/teams/{teamID}/difficulty", summary: "Adjust difficulty",
		description: "Moves one step. Moving easier grants extra hints.",
		req:         teamDifficultyParams{}, resp: AdminChangeResponse{},
		errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/teams/{teamID}/time", summary: "Extend time",
		req: teamTimeParams{}, resp: AdminChangeResponse{},
		errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/broadcast", summary: "Broadcast a message",
		description: "Sends a message to every team whose game has not finished.",
		req:         AdminMessageRequest{}, resp: AdminBroadcastResponse{}, errors: []int{http.StatusBadRequest, http.StatusUnauthorized}},
	{method: http.MethodGet, path: "/api/admin/actions", summary: "Audit log",
		req: actionListParams{}, resp: []AdminActionItem{}, errors: []int{http.StatusBadRequest, http.StatusUnauthorized}},
	{method: http.MethodGet, path: "/api/admin/content/{theme}", summary: "Get theme content",
		req: themeParams{}, resp: ThemeContentResponse{}, errors: []int{http.StatusNotFound, http.StatusUnauthorized}},
	{method: http.MethodPut, path: "/api/admin/content/{theme}", summary: "Replace theme content",
		req: themeContentParams{}, resp: ContentSaveResponse{}, errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized}},
	{method: http.MethodDelete, path: "/api/admin/content/{theme}", summary: "Reset theme content",
		req: themeParams{}, resp: ContentSaveResponse{}, errors: []int{http.StatusNotFound, http.StatusUnauthorized}},
	{method: http.MethodGet, path: "/api/admin/content/export", summary: "Export custom content",
		errors: []int{http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/content/import", summary: "Import custom content",
		description: "Replaces every theme named in the document. Invalid documents change nothing.",
		resp:        ContentSaveResponse{}, errors: []int{http.StatusBadRequest, http.StatusUnauthorized}},
	{method: http.MethodGet, path: "/api/admin/settings", summary: "Get site settings",
		resp: settings.Settings{}, errors: []int{http.StatusUnauthorized}},
	{method: http.MethodPut, path: "/api/admin/settings", summary: "Update site settings",
		description: "The version must match the current one, or be 0.",
		req:         settings.Settings{}, resp: settings.Settings{},
		errors: []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnauthorized}},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Escape Room API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for the multi-theme digital escape room.")

	for _, op := range operations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		if op.description != "" {
			oc.SetDescription(op.description)
		}
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}

		status := op.status
		if status == 0 {
			status = http.StatusOK
		}
		switch {
		case op.contentType != "":
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(status), openapi.WithContentType(op.contentType))
		default:
			oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(status))
		}
		for _, code := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(code))
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
