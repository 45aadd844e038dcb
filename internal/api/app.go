package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/jarvis/internal/assistant"
	"github.com/kalambet/jarvis/internal/profile"
	"github.com/kalambet/jarvis/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Assistant *assistant.Assistant
	Profiles  *profile.Manager
	Journal   *storage.Store // optional; interaction routes return 503 without it
	Token     string
	Logger    *slog.Logger
}

// TurnRequest is the body of POST /turn.
type TurnRequest struct {
	Profile   string `json:"profile"`
	Utterance string `json:"utterance"`
}

// CreateProfileRequest is the body of POST /profiles.
type CreateProfileRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// LoginRequest is the body of POST /profiles/{name}/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries the new session token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProfileView is a profile without its credential and session token.
type ProfileView struct {
	*profile.Profile
	Credential    *profile.Credential `json:"credential,omitempty"`
	Session       *profile.Session    `json:"session,omitempty"`
	Authenticated bool                `json:"authenticated"`
	SessionExpiry *time.Time          `json:"session_expires_at,omitempty"`
}

// NewProfileView hides the credential and session token of p.
func NewProfileView(p *profile.Profile, authenticated bool) ProfileView {
	v := ProfileView{Profile: p, Authenticated: authenticated}
	if authenticated {
		exp := p.Session.ExpiresAt
		v.SessionExpiry = &exp
	}
	return v
}

// NewAppHandler returns the HTTP API. Every route except /health requires
// the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/turn", handleTurn(deps))
		r.Get("/classify", handleClassify(deps))
		r.Get("/suggest", handleSuggest(deps))

		r.Get("/profiles", handleListProfiles(deps))
		r.Post("/profiles", handleCreateProfile(deps))
		r.Get("/profiles/{name}", handleGetProfile(deps))
		r.Delete("/profiles/{name}", handleDeleteProfile(deps))
		r.Post("/profiles/{name}/login", handleLogin(deps))
		r.Post("/profiles/{name}/logout", handleLogout(deps))

		r.Get("/interactions", handleListInteractions(deps))
		r.Get("/interactions/{id}", handleGetInteraction(deps))
	})

	return r
}

// BearerAuth rejects requests that do not present token as a bearer
// credential. An empty token locks every guarded route.
func BearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// exclusive runs a profile change between assistant turns.
func exclusive(deps AppDeps, fn func() error) error {
	if deps.Assistant == nil {
		return fn()
	}
	return deps.Assistant.Exclusive(fn)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func handleTurn(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TurnRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Profile == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "profile is required")
			return
		}

		out, err := deps.Assistant.Process(r.Context(), req.Profile, req.Utterance)
		switch {
		case errors.Is(err, assistant.ErrEmptyUtterance):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "utterance is required")
			return
		case errors.Is(err, profile.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "profile %q not found", req.Profile)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "processing turn: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleClassify(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		m, ok := deps.Assistant.Classify(q)
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"category": nil})
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func handleSuggest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 3, 20)
		got := deps.Assistant.Suggest(r.URL.Query().Get("q"), limit)
		if got == nil {
			got = []string{}
		}
		writeJSON(w, http.StatusOK, got)
	}
}

func handleListProfiles(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Profiles.Names())
	}
}

func handleCreateProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProfileRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		p, err := deps.Profiles.Create(req.Name, req.Location)
		var perr *profile.PersistenceError
		switch {
		case errors.Is(err, profile.ErrExists):
			httpError(w, http.StatusConflict, "conflict", "profile %q already exists", req.Name)
			return
		case errors.As(err, &perr):
			deps.Logger.Warn("created profile kept in memory only", "profile", req.Name, "error", err)
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "creating profile: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, NewProfileView(p, false))
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		p, err := deps.Profiles.Get(name)
		if errors.Is(err, profile.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile %q not found", name)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, NewProfileView(p, deps.Profiles.IsAuthenticated(name, "")))
	}
}

func handleDeleteProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		err := exclusive(deps, func() error { return deps.Profiles.Delete(name) })
		if errors.Is(err, profile.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile %q not found", name)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting profile: %v", err)
			return
		}

		if deps.Journal != nil {
			if _, err := deps.Journal.DeleteProfileInteractions(name); err != nil {
				deps.Logger.Warn("interactions of deleted profile kept", "profile", name, "error", err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleLogin(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var req LoginRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var token string
		err := exclusive(deps, func() (err error) {
			token, err = deps.Profiles.Authenticate(name, req.Password)
			return err
		})
		var perr *profile.PersistenceError
		switch {
		case errors.Is(err, profile.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "profile %q not found", name)
			return
		case errors.Is(err, profile.ErrEmptyPassword):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "password is required")
			return
		case errors.Is(err, profile.ErrInvalidPassword):
			httpError(w, http.StatusUnauthorized, "authentication_error", "incorrect password")
			return
		case errors.As(err, &perr):
			deps.Logger.Warn("session kept in memory only", "profile", name, "error", err)
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "authenticating: %v", err)
			return
		}

		p, err := deps.Profiles.Get(name)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: p.Session.ExpiresAt})
	}
}

func handleLogout(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		err := exclusive(deps, func() error { return deps.Profiles.Logout(name) })
		var perr *profile.PersistenceError
		switch {
		case errors.Is(err, profile.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "profile %q not found", name)
			return
		case errors.As(err, &perr):
			deps.Logger.Warn("logout kept in memory only", "profile", name, "error", err)
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "logging out: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
	}
}

func handleListInteractions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Journal == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "interaction journal is disabled")
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)

		interactions, err := deps.Journal.RecentInteractions(r.URL.Query().Get("profile"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		if interactions == nil {
			interactions = []storage.Interaction{}
		}
		writeJSON(w, http.StatusOK, interactions)
	}
}

func handleGetInteraction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Journal == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "interaction journal is disabled")
			return
		}
		id := chi.URLParam(r, "id")

		interaction, err := deps.Journal.GetInteraction(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interaction: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, interaction)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
