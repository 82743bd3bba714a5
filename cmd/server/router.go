package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/resource-api/internal/api"
	apiMiddleware "github.com/phrazzld/resource-api/internal/api/middleware"
	"github.com/phrazzld/resource-api/internal/api/shared"
	"github.com/phrazzld/resource-api/internal/metrics"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))
	r.Use(apiMiddleware.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(app.metrics.Middleware)

	authHandler := api.NewAuthHandler(app.identities, app.tokens, app.config.Auth, app.logger)
	resourceHandler := api.NewResourceHandler(app.repos, app.gate, app.logger)
	statusHandler := api.NewStatusHandler(app.registry)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.gate)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Identify)
		if app.limiter != nil {
			r.Use(app.limiter.Middleware)
		}

		r.Get("/status", statusHandler.Status)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
			r.With(authMiddleware.Authenticate).Get("/me", authHandler.Me)
		})

		r.Route("/{"+api.KindParam+"}", func(r chi.Router) {
			r.Get("/", resourceHandler.List)
			r.Get("/search", resourceHandler.Search)
			r.Get("/{"+api.IDParam+"}", resourceHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Authenticate)
				r.Post("/", resourceHandler.Create)
				r.Put("/{"+api.IDParam+"}", resourceHandler.Replace)
				r.Patch("/{"+api.IDParam+"}", resourceHandler.Patch)
				r.Delete("/{"+api.IDParam+"}", resourceHandler.Delete)
			})
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(app.metricsRegistry))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithError(w, r, http.StatusNotFound, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithError(w, r, http.StatusMethodNotAllowed, "Method not allowed",
			shared.WithKind(shared.KindBadRequest))
	})

	return r
}
