package cmd

import (
	"net/http"

	"swipe-match-backend/internal/handlers"
	"swipe-match-backend/internal/middleware"
	"swipe-match-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// routerDeps are the services the HTTP surface is built from
type routerDeps struct {
	devices        *services.DeviceService
	sessions       *services.SessionService
	candidates     handlers.CandidateSource
	inviteBaseURL  string
	allowedOrigins []string
}

func newRouter(d routerDeps) http.Handler {
	deviceHandler := handlers.NewDeviceHandler(d.devices)
	sessionHandler := handlers.NewSessionHandler(d.sessions, d.candidates, d.inviteBaseURL)
	wsHandler := handlers.NewWebSocketHandler(d.sessions, d.devices)

	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: d.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/devices", deviceHandler.RegisterDevice)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(d.devices))
			r.Put("/devices/push-token", deviceHandler.UpdatePushToken)

			r.Post("/sessions", sessionHandler.CreateSession)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.GetSession)
				r.Post("/join", sessionHandler.JoinSession)
				r.Post("/swipes", sessionHandler.RecordSwipe)
				r.Post("/end", sessionHandler.EndSession)
				r.Get("/state", sessionHandler.GetState)
				r.Get("/matches", sessionHandler.GetMatches)
			})
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
