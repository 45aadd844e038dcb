package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/jarvis/internal/assistant"
	"github.com/kalambet/jarvis/internal/learning"
	"github.com/kalambet/jarvis/internal/profile"
	"github.com/kalambet/jarvis/internal/storage"
)

const testToken = "test-token-12345"

type testDeps struct {
	app      AppDeps
	profiles *profile.Manager
	learner  *learning.Store
	journal  *storage.Store
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	dir := t.TempDir()

	profiles, err := profile.Open(profile.Options{
		Dir:           filepath.Join(dir, "profiles"),
		KDFIterations: 1000,
		Logger:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("profile.Open: %v", err)
	}
	learner := learning.New(filepath.Join(dir, "learning.json"), learning.WithLogger(quietLogger()))
	t.Cleanup(func() { learner.Close() })

	journal, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	a := assistant.New(assistant.Config{
		Profiles: profiles,
		Sessions: profiles.Authenticator(),
		Learner:  learner,
		Journal:  journal,
		Logger:   quietLogger(),
	})
	return &testDeps{
		app: AppDeps{
			Assistant: a,
			Profiles:  profiles,
			Journal:   journal,
			Token:     testToken,
			Logger:    quietLogger(),
		},
		profiles: profiles,
		learner:  learner,
		journal:  journal,
	}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth_NoAuth(t *testing.T) {
	h := NewAppHandler(newTestDeps(t).app)
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestBearerAuth(t *testing.T) {
	h := NewAppHandler(newTestDeps(t).app)

	for _, token := range []string{"", "wrong"} {
		rr := serve(h, authReq(http.MethodGet, "/profiles", "", token))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rr.Code)
		}
	}
	if rr := serve(h, authReq(http.MethodGet, "/profiles", "", testToken)); rr.Code != http.StatusOK {
		t.Errorf("valid token: status = %d", rr.Code)
	}
}

func TestBearerAuth_EmptyConfiguredToken(t *testing.T) {
	deps := newTestDeps(t)
	deps.app.Token = ""
	h := NewAppHandler(deps.app)
	req := httptest.NewRequest(http.MethodGet, "/profiles", nil)
	req.Header.Set("Authorization", "Bearer ")
	if rr := serve(h, req); rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestProfiles_CreateGetDelete(t *testing.T) {
	deps := newTestDeps(t)
	h := NewAppHandler(deps.app)

	rr := serve(h, authReq(http.MethodPost, "/profiles", `{"name":"Ada","location":"London"}`, testToken))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rr.Code, rr.Body.String())
	}
	rr = serve(h, authReq(http.MethodPost, "/profiles", `{"name":"Ada"}`, testToken))
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate: status = %d", rr.Code)
	}
	rr = serve(h, authReq(http.MethodPost, "/profiles", `{"location":"x"}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("no name: status = %d", rr.Code)
	}

	rr = serve(h, authReq(http.MethodGet, "/profiles", "", testToken))
	var names []string
	json.NewDecoder(rr.Body).Decode(&names)
	if len(names) != 1 || names[0] != "Ada" {
		t.Errorf("names = %v", names)
	}

	rr = serve(h, authReq(http.MethodGet, "/profiles/Ada", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rr.Code)
	}
	var got map[string]any
	json.NewDecoder(rr.Body).Decode(&got)
	if got["name"] != "Ada" || got["location"] != "London" || got["authenticated"] != false {
		t.Errorf("profile = %v", got)
	}

	rr = serve(h, authReq(http.MethodDelete, "/profiles/Ada", "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("delete: status = %d", rr.Code)
	}
	rr = serve(h, authReq(http.MethodGet, "/profiles/Ada", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("get deleted: status = %d", rr.Code)
	}
}

func TestLogin_HidesSecrets(t *testing.T) {
	deps := newTestDeps(t)
	deps.profiles.Create("Ada", "")
	h := NewAppHandler(deps.app)

	rr := serve(h, authReq(http.MethodPost, "/profiles/Ada/login", `{"password":"hunter2"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var login LoginResponse
	json.NewDecoder(rr.Body).Decode(&login)
	if len(login.Token) != 64 || login.ExpiresAt.IsZero() {
		t.Errorf("login = %+v", login)
	}
	if !deps.profiles.IsAuthenticated("Ada", login.Token) {
		t.Error("token not accepted by the profile store")
	}

	rr = serve(h, authReq(http.MethodGet, "/profiles/Ada", "", testToken))
	body := rr.Body.String()
	if strings.Contains(body, login.Token) || strings.Contains(body, `"credential"`) {
		t.Errorf("profile view leaks secrets: %s", body)
	}
	if !strings.Contains(body, `"authenticated":true`) {
		t.Errorf("profile view not authenticated: %s", body)
	}

	rr = serve(h, authReq(http.MethodPost, "/profiles/Ada/login", `{"password":"nope"}`, testToken))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d", rr.Code)
	}
	rr = serve(h, authReq(http.MethodPost, "/profiles/Ada/login", `{"password":""}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty password: status = %d", rr.Code)
	}
	rr = serve(h, authReq(http.MethodPost, "/profiles/Nobody/login", `{"password":"x"}`, testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown profile: status = %d", rr.Code)
	}

	rr = serve(h, authReq(http.MethodPost, "/profiles/Ada/logout", "", testToken))
	if rr.Code != http.StatusOK || deps.profiles.IsAuthenticated("Ada", "") {
		t.Errorf("logout: status = %d", rr.Code)
	}
}

func TestTurn(t *testing.T) {
	deps := newTestDeps(t)
	deps.profiles.Create("Ada", "")
	h := NewAppHandler(deps.app)

	rr := serve(h, authReq(http.MethodPost, "/turn", `{"profile":"Ada","utterance":"list my contacts"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var out assistant.Outcome
	json.NewDecoder(rr.Body).Decode(&out)
	if out.Category != "contact" || !out.Denied || out.Response != assistant.DeniedResponse {
		t.Errorf("outcome = %+v", out)
	}
	if out.ID == "" {
		t.Error("turn not journaled")
	}

	rr = serve(h, authReq(http.MethodGet, "/interactions/"+out.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Errorf("get interaction: status = %d", rr.Code)
	}
	rr = serve(h, authReq(http.MethodGet, "/interactions?profile=Ada", "", testToken))
	var list []storage.Interaction
	json.NewDecoder(rr.Body).Decode(&list)
	if len(list) != 1 || list[0].Status != "denied" {
		t.Errorf("interactions = %+v", list)
	}
}

func TestTurn_Errors(t *testing.T) {
	deps := newTestDeps(t)
	deps.profiles.Create("Ada", "")
	h := NewAppHandler(deps.app)

	tests := []struct {
		body string
		code int
	}{
		{`not json`, http.StatusBadRequest},
		{`{"utterance":"hi"}`, http.StatusBadRequest},
		{`{"profile":"Ada","utterance":"  "}`, http.StatusBadRequest},
		{`{"profile":"Nobody","utterance":"hi"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		rr := serve(h, authReq(http.MethodPost, "/turn", tt.body, testToken))
		if rr.Code != tt.code {
			t.Errorf("body %s: status = %d, want %d", tt.body, rr.Code, tt.code)
		}
	}
}

func TestClassifyAndSuggest(t *testing.T) {
	deps := newTestDeps(t)
	deps.learner.Learn("crank the volume", "music", true)
	h := NewAppHandler(deps.app)

	rr := serve(h, authReq(http.MethodGet, "/classify?q=please+search+for+rust+books", "", testToken))
	if !strings.Contains(rr.Body.String(), `"category":"search"`) || !strings.Contains(rr.Body.String(), `"source":"keyword"`) {
		t.Errorf("classify = %s", rr.Body.String())
	}
	rr = serve(h, authReq(http.MethodGet, "/classify?q=crank+the+volume", "", testToken))
	if !strings.Contains(rr.Body.String(), `"source":"learned"`) {
		t.Errorf("classify learned = %s", rr.Body.String())
	}
	rr = serve(h, authReq(http.MethodGet, "/classify?q=zzz", "", testToken))
	if !strings.Contains(rr.Body.String(), `"category":null`) {
		t.Errorf("classify miss = %s", rr.Body.String())
	}

	rr = serve(h, authReq(http.MethodGet, "/suggest?q=cr", "", testToken))
	var got []string
	json.NewDecoder(rr.Body).Decode(&got)
	if len(got) != 1 || got[0] != "music" {
		t.Errorf("suggest = %v", got)
	}
}

func TestInteractions_JournalDisabled(t *testing.T) {
	deps := newTestDeps(t)
	deps.app.Journal = nil
	h := NewAppHandler(deps.app)
	rr := serve(h, authReq(http.MethodGet, "/interactions", "", testToken))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rr.Code)
	}
}
