package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/escaperoom/internal/admin"
	"github.com/playperu/escaperoom/internal/clock"
	"github.com/playperu/escaperoom/internal/database"
	"github.com/playperu/escaperoom/internal/escaperoom"
	"github.com/playperu/escaperoom/internal/game"
	"github.com/playperu/escaperoom/internal/locale"
	"github.com/playperu/escaperoom/internal/settings"
	"github.com/playperu/escaperoom/internal/storage"
)

const (
	testAdminEmail    = "admin@playperu.com"
	testAdminPassword = "changeme"
)

type testEnv struct {
	handler http.Handler
	games   *game.Manager
	content *game.ContentService
	clock   *clock.Manual
}

func newTestEnv(t *testing.T, tr *locale.Translator) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.Default()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	docs, err := storage.NewDocStore(ctx, db)
	if err != nil {
		t.Fatalf("init doc store: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := docs.EnsureAdmin(ctx, testAdminEmail, string(hash)); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	clk := clock.NewManual(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC))
	broker := NewBroker()
	repo := storage.NewRepository(docs, storage.NewMemoryStore(), logger, clk.Now)
	content := game.NewContentService(ctx, repo, logger)
	games := game.NewManager(repo, content, clk, broker, logger, game.Options{
		TickInterval:   time.Second,
		SyncEveryTicks: 5,
	})
	t.Cleanup(func() { games.Close() })

	srv := New(":0", logger, Deps{
		Games:           games,
		Admin:           admin.NewService(repo, content, broker, logger, clk.Now),
		Auth:            docs,
		Settings:        settings.NewRegistry(ctx, docs, logger),
		Broker:          broker,
		Translator:      tr,
		PublicURL:       "https://play.example.com/",
		MonitorInterval: 20 * time.Millisecond,
	})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &testEnv{handler: srv.Handler(), games: games, content: content, clock: clk}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v (body %q)", v, err, w.Body.String())
	}
	return v
}

func (e *testEnv) createSession(t *testing.T, difficulty string) CreateSessionResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{
		TeamName:   "Los Incas",
		Theme:      "murder-mystery",
		Difficulty: difficulty,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[CreateSessionResponse](t, w)
}

func (e *testEnv) login(t *testing.T) []*http.Cookie {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/admin/login", AdminLoginRequest{Email: testAdminEmail, Password: testAdminPassword})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	return w.Result().Cookies()
}

func (e *testEnv) teamID(t *testing.T, cookies []*http.Cookie, sessionID string) string {
	t.Helper()
	w := e.do(t, http.MethodGet, "/api/admin/sessions", nil, cookies...)
	if w.Code != http.StatusOK {
		t.Fatalf("list sessions: %d", w.Code)
	}
	for _, s := range decode[[]SessionSummary](t, w) {
		if s.SessionID == sessionID {
			return s.TeamID
		}
	}
	t.Fatalf("session %s not listed", sessionID)
	return ""
}

func TestCreateSession(t *testing.T) {
	e := newTestEnv(t, nil)
	resp := e.createSession(t, "medium")

	s := resp.Session
	if s.Status != escaperoom.StatusActive || s.CurrentStage != 1 || s.TotalStages != 6 {
		t.Errorf("session = %+v", s)
	}
	if s.TimeRemaining != 3600 || s.HintsAvailable != 3 {
		t.Errorf("time/hints = %d/%d, want 3600/3", s.TimeRemaining, s.HintsAvailable)
	}
	if s.ThemeName == "" || s.Sync != storage.SyncSynced {
		t.Errorf("themeName %q sync %q", s.ThemeName, s.Sync)
	}
	if want := "https://play.example.com/resume/" + s.ID; resp.ResumeURL != want {
		t.Errorf("resumeUrl = %q, want %q", resp.ResumeURL, want)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	tests := []struct {
		name string
		req  CreateSessionRequest
	}{
		{"empty team name", CreateSessionRequest{TeamName: "  ", Difficulty: "easy"}},
		{"long team name", CreateSessionRequest{TeamName: strings.Repeat("x", 51), Difficulty: "easy"}},
		{"unknown difficulty", CreateSessionRequest{TeamName: "Los Incas", Difficulty: "nightmare"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/sessions", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	e := newTestEnv(t, nil)
	created := e.createSession(t, "hard")

	w := e.do(t, http.MethodGet, "/api/sessions/"+created.Session.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode[ResultResponse](t, w).Session; got.ID != created.Session.ID || got.HintsAvailable != 1 {
		t.Errorf("session = %+v", got)
	}

	if w := e.do(t, http.MethodGet, "/api/sessions/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: expected 400, got %d", w.Code)
	}

	// A well-formed id nobody knows resumes as a demo game.
	w = e.do(t, http.MethodGet, "/api/sessions/"+uuid.NewString(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("demo: expected 200, got %d", w.Code)
	}
	if got := decode[ResultResponse](t, w).Session; got.TeamName != "Demo Team" {
		t.Errorf("demo team name = %q", got.TeamName)
	}
}

func TestAnswerFlow(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.createSession(t, "medium").Session.ID
	base := "/api/sessions/" + id + "/stages/"

	w := e.do(t, http.MethodPost, base+"1/answer", AnswerRequest{Answer: "certainly wrong"})
	wrong := decode[ResultResponse](t, w)
	if wrong.Changed || wrong.Answer == nil || wrong.Answer.IsCorrect {
		t.Fatalf("wrong answer = %+v", wrong)
	}
	if wrong.Advisory != escaperoom.AdvisoryWrongAnswer {
		t.Errorf("advisory = %q", wrong.Advisory)
	}

	solution := e.content.Resolve("murder-mystery", 1).Solution()
	w = e.do(t, http.MethodPost, base+"1/answer", AnswerRequest{Answer: "  " + strings.ToUpper(solution) + " "})
	right := decode[ResultResponse](t, w)
	if !right.Changed || right.Answer == nil || !right.Answer.IsCorrect {
		t.Fatalf("correct answer = %+v", right)
	}
	if len(right.Session.StagesSolved) != 1 || right.Session.StagesSolved[0] != 1 {
		t.Errorf("stagesSolved = %v", right.Session.StagesSolved)
	}
	if right.Session.CurrentStage != 2 {
		t.Errorf("currentStage = %d, want 2", right.Session.CurrentStage)
	}

	w = e.do(t, http.MethodGet, base+"1", nil)
	stage := decode[StageResponse](t, w)
	if !stage.Solved || stage.Solution == "" {
		t.Errorf("solved stage = %+v", stage)
	}
}

func TestLockedStage(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.createSession(t, "medium").Session.ID

	w := e.do(t, http.MethodGet, "/api/sessions/"+id+"/stages/3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	stage := decode[StageResponse](t, w)
	if stage.Unlocked || stage.Description != "" || stage.Evidence != nil {
		t.Errorf("locked stage leaked content: %+v", stage)
	}
	if stage.Title == "" || stage.Advisory == "" {
		t.Errorf("locked stage = %+v", stage)
	}

	if w := e.do(t, http.MethodGet, "/api/sessions/"+id+"/stages/7", nil); w.Code != http.StatusNotFound {
		t.Errorf("stage 7: expected 404, got %d", w.Code)
	}
}

func TestNavigateValidation(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.createSession(t, "medium").Session.ID
	path := "/api/sessions/" + id + "/navigate"

	for _, req := range []NavigateRequest{{Action: "jump"}, {Action: "goto", Stage: 0}, {Action: "goto", Stage: 7}} {
		if w := e.do(t, http.MethodPost, path, req); w.Code != http.StatusBadRequest {
			t.Errorf("%+v: expected 400, got %d", req, w.Code)
		}
	}

	w := e.do(t, http.MethodPost, path, NavigateRequest{Action: "next"})
	res := decode[ResultResponse](t, w)
	if res.Changed || res.Session.CurrentStage != 1 || res.Advisory == "" {
		t.Errorf("gated next = %+v", res)
	}
}

func TestHintsAndEnd(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.createSession(t, "hard").Session.ID

	res := decode[ResultResponse](t, e.do(t, http.MethodPost, "/api/sessions/"+id+"/hints", nil))
	if !res.Changed || res.Hint == "" || res.Session.HintsAvailable != 0 {
		t.Fatalf("first hint = %+v", res)
	}
	res = decode[ResultResponse](t, e.do(t, http.MethodPost, "/api/sessions/"+id+"/hints", nil))
	if res.Changed || res.Advisory != escaperoom.AdvisoryNoHints {
		t.Errorf("second hint = %+v", res)
	}

	res = decode[ResultResponse](t, e.do(t, http.MethodPost, "/api/sessions/"+id+"/end", nil))
	if res.Session.Status != escaperoom.StatusEnded || res.Session.EndTime == nil {
		t.Errorf("end = %+v", res.Session)
	}
}

func TestCertificate(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.createSession(t, "easy").Session.ID

	if w := e.do(t, http.MethodGet, "/api/sessions/"+id+"/certificate", nil); w.Code != http.StatusConflict {
		t.Fatalf("unfinished: expected 409, got %d", w.Code)
	}

	for stage := 1; stage <= escaperoom.TotalStages; stage++ {
		w := e.do(t, http.MethodPost, "/api/sessions/"+id+"/stages/"+strconv.Itoa(stage)+"/reveal", nil)
		res := decode[ResultResponse](t, w)
		if res.Answer == nil || !res.Answer.Revealed || res.Answer.Solution == "" {
			t.Fatalf("reveal %d = %+v", stage, res)
		}
	}

	w := e.do(t, http.MethodGet, "/api/sessions/"+id+"/certificate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cert := decode[CertificateResponse](t, w)
	if cert.TeamName != "Los Incas" || cert.AnswersRevealed != 6 || cert.SiteName != settings.Defaults().SiteName {
		t.Errorf("certificate = %+v", cert)
	}
}

func TestTranslatedAdvisory(t *testing.T) {
	tr, err := locale.New("../../locales", "es")
	if err != nil {
		t.Fatalf("locale: %v", err)
	}
	e := newTestEnv(t, tr)
	id := e.createSession(t, "medium").Session.ID

	w := e.do(t, http.MethodPost, "/api/sessions/"+id+"/stages/1/answer", AnswerRequest{Answer: "nope"})
	if got := decode[ResultResponse](t, w).Advisory; got != "No es del todo correcto. Vuelve a revisar las pruebas." {
		t.Errorf("advisory = %q", got)
	}
}

func TestQRCode(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodGet, "/api/sessions/"+uuid.NewString()+"/qr", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content-type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	if w := e.do(t, http.MethodGet, "/api/sessions/nope/qr", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: expected 400, got %d", w.Code)
	}
}

func TestEventsStreamsInitialState(t *testing.T) {
	e := newTestEnv(t, nil)
	id := e.createSession(t, "medium").Session.ID

	ts := httptest.NewServer(e.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/sessions/"+id+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}
	buf := make([]byte, 256)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(buf[:n]), "event: state\n") {
		t.Errorf("first event = %q", buf[:n])
	}
}
