package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wildpals/internal/handler"
	"wildpals/internal/httputil"
	authmw "wildpals/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	RideHandler    *handler.RideHandler
	ClubHandler    *handler.ClubHandler
	MessageHandler *handler.MessageHandler
	JWTSecret      string
	Port           string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
		})
	})

	r.Route("/api", func(r chi.Router) {
		// Public routes - no authentication required
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", cfg.AuthHandler.Register)
			r.Post("/login", cfg.AuthHandler.Login)
			r.Post("/refresh", cfg.AuthHandler.Refresh)
			r.Post("/request-reset", cfg.AuthHandler.RequestPasswordReset)
			r.Post("/reset-password", cfg.AuthHandler.ResetPassword)
		})

		// Listings with optional authentication: private rides/clubs are
		// visible to their members, everything public stays open.
		r.With(authmw.OptionalAuthMiddleware(cfg.JWTSecret)).Get("/rides", cfg.RideHandler.List)
		r.With(authmw.OptionalAuthMiddleware(cfg.JWTSecret)).Get("/rides/{rideId}", cfg.RideHandler.Get)
		r.With(authmw.OptionalAuthMiddleware(cfg.JWTSecret)).Get("/clubs", cfg.ClubHandler.List)
		r.With(authmw.OptionalAuthMiddleware(cfg.JWTSecret)).Get("/clubs/{clubId}", cfg.ClubHandler.Get)
		r.With(authmw.OptionalAuthMiddleware(cfg.JWTSecret)).Get("/users/search", cfg.UserHandler.Search)
		r.With(authmw.OptionalAuthMiddleware(cfg.JWTSecret)).Get("/users/{userId}", cfg.UserHandler.GetProfile)

		// Protected routes - require authentication
		r.Group(func(r chi.Router) {
			r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

			r.Post("/auth/logout", cfg.AuthHandler.Logout)
			r.Post("/auth/logout-all", cfg.AuthHandler.LogoutAll)

			r.Get("/users/me", cfg.UserHandler.Me)
			r.Put("/users/me", cfg.UserHandler.UpdateProfile)
			r.Post("/users/me/avatar", cfg.UserHandler.UploadAvatar)

			r.Post("/rides", cfg.RideHandler.Create)
			r.Put("/rides/{rideId}", cfg.RideHandler.Update)
			r.Delete("/rides/{rideId}", cfg.RideHandler.Delete)
			r.Post("/rides/{rideId}/join", cfg.RideHandler.Join)
			r.Post("/rides/{rideId}/leave", cfg.RideHandler.Leave)

			r.Post("/clubs", cfg.ClubHandler.Create)
			r.Get("/clubs/user", cfg.ClubHandler.ListMine)
			r.Post("/clubs/{clubId}/join", cfg.ClubHandler.Join)
			r.Get("/clubs/{clubId}/requests", cfg.ClubHandler.ListJoinRequests)
			r.Post("/clubs/requests/{requestId}", cfg.ClubHandler.ResolveJoinRequest)

			r.Post("/messages", cfg.MessageHandler.Send)
			r.Get("/messages", cfg.MessageHandler.List)
			r.Get("/messages/ride/{rideId}", cfg.MessageHandler.ListForRide)
			r.Get("/messages/threads", cfg.MessageHandler.ListConversations)
			r.Post("/messages/threads/{userId}/read", cfg.MessageHandler.MarkConversationRead)
			r.Delete("/messages/{messageId}", cfg.MessageHandler.Delete)
		})
	})

	return r
}
