package http

import (
	"net/http"
	"time"

	"lockin/internal/auth"
	"lockin/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type API struct {
	Service *service.Service
	Auth    *auth.Manager
	Origins []string
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(loggingMiddleware)
	r.Use(a.corsMiddleware)

	r.Get("/health", a.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", a.handleRegister)
		r.Post("/login", a.handleLogin)
	})

	// Invite previews are public: the invitee is not signed up yet.
	r.Get("/invites/{username}", a.handleResolveInvite)

	r.Group(func(r chi.Router) {
		r.Use(a.authMiddleware)
		r.Get("/me", a.handleMe)
		r.Post("/friends", a.handleAddFriend)
		r.Get("/space", a.handleGetSpace)
		r.Delete("/space", a.handleLeaveSpace)
		r.Put("/space/theme", a.handleUpdateTheme)
		r.Post("/stats/sync", a.handleSyncStats)
		r.Post("/sessions", a.handleLogSession)
		r.Get("/squadron", a.handleSquadronStats)
		r.Get("/analytics", a.handleAnalytics)
	})

	return r
}
