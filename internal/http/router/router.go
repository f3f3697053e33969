package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/chatforge/authcore/internal/http/handler"
	"github.com/chatforge/authcore/internal/http/middleware"
	"github.com/chatforge/authcore/internal/http/response"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	TwoFactorHandler *handler.TwoFactorHandler
	Verifier         middleware.RequestVerifier
	Logger           *slog.Logger
	EnableOTelHTTP   bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(1 << 20))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	authed := middleware.AuthMiddleware(dep.Verifier)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/login/2fa", dep.AuthHandler.TwoFactorLogin)
			r.Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.With(authed).Post("/logout-everywhere", dep.AuthHandler.LogoutEverywhere)
		})

		r.Group(func(r chi.Router) {
			r.Use(authed)
			r.Get("/me/sessions", dep.AuthHandler.Sessions)
			r.Delete("/me/sessions/{sessionID}", dep.AuthHandler.RevokeSession)
			r.Route("/me/2fa", func(r chi.Router) {
				r.Get("/", dep.TwoFactorHandler.Status)
				r.Post("/setup", dep.TwoFactorHandler.Setup)
				r.Post("/enable", dep.TwoFactorHandler.Enable)
				r.Post("/disable", dep.TwoFactorHandler.Disable)
				r.Post("/backup-codes", dep.TwoFactorHandler.RegenerateBackupCodes)
			})
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
