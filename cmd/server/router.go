package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/quizrun-api/internal/api"
	apiMiddleware "github.com/phrazzld/quizrun-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	taskHandler := api.NewTaskHandler(app.tasks, app.logger)
	adminHandler := api.NewAdminHandler(app.tasks, app.logger)
	providerHandler := api.NewProviderHandler(app.providers, app.logger)
	workerHandler := api.NewWorkerHandler(app.runner, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/tasks", taskHandler.CreateTask)
		r.Get("/tasks", taskHandler.ListTasks)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Get("/providers/health", providerHandler.Health)

		r.Route("/admin/tasks", func(r chi.Router) {
			r.Use(apiMiddleware.RequireAdmin)
			r.Post("/cancel", adminHandler.Cancel)
			r.Post("/delete", adminHandler.Delete)
			r.Post("/cleanup", adminHandler.Cleanup)
			r.Post("/reap", adminHandler.Reap)
		})
	})

	r.With(apiMiddleware.RequireServiceIdentity(app.verifier)).
		Post("/worker/tasks", workerHandler.HandleDelivery)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
