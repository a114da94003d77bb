package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"lockin/internal/auth"
	"lockin/internal/models"
	"lockin/internal/service"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type addFriendRequest struct {
	Username string `json:"username"`
}

type themeRequest struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type syncStatsRequest struct {
	Minutes int    `json:"minutes"`
	Song    string `json:"song"`
	Status  string `json:"status"`
}

type logSessionRequest struct {
	Duration int    `json:"duration"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Tag      string `json:"tag"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Email, username and password required")
		return
	}
	result, token, err := a.Service.RegisterUser(r.Context(), req.Email, req.Name, req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Registration failed")
		return
	}
	// Business failures (username taken, bad password on re-registration) ride
	// back as data so the client can render them inline.
	writeJSON(w, http.StatusOK, registerResponse{Success: result.Success, Message: result.Message, Token: token})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := a.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (a *API) handleResolveInvite(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	preview, err := a.Service.ResolveInvite(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve invite")
		return
	}
	// An unknown username previews as null, not as an error.
	writeJSON(w, http.StatusOK, preview)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	user, err := a.Service.GetUser(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	var req addFriendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Username required")
		return
	}
	result, err := a.Service.AddFriend(r.Context(), email, req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to add friend")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	space, err := a.Service.GetSpace(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load space")
		return
	}
	writeJSON(w, http.StatusOK, space)
}

func (a *API) handleLeaveSpace(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	if err := a.Service.LeaveSpace(r.Context(), email); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to leave space")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUpdateTheme(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	var req themeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Theme type required")
		return
	}
	if err := a.Service.UpdateTheme(r.Context(), email, models.Theme{Type: req.Type, Value: req.Value}); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update theme")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSyncStats(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	var req syncStatsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	stats := models.Stats{Email: email, Minutes: req.Minutes, Song: req.Song, Status: req.Status}
	if err := a.Service.SyncStats(r.Context(), stats); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sync stats")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLogSession(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	var req logSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.Service.LogSession(r.Context(), email, req.Duration, req.Type, req.Name, req.Tag); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSquadronStats(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	stats, err := a.Service.GetSquadronStats(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load squadron stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.EmailFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	analytics, err := a.Service.GetAnalytics(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load analytics")
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid payload")
		return false
	}
	return true
}
