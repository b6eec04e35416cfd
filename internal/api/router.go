package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kyuchan/presentation-grader/internal/api/handlers"
	"github.com/kyuchan/presentation-grader/internal/api/middleware"
	"github.com/kyuchan/presentation-grader/internal/app"
	"github.com/kyuchan/presentation-grader/internal/auth"
)

type Router struct {
	mux     *chi.Mux
	app     *app.App
	limiter *middleware.RateLimiter
	jwt     *auth.JWTMiddleware // nil disables auth on /api/v1
}

func NewRouter(a *app.App) *Router {
	rt := &Router{
		mux:     chi.NewRouter(),
		app:     a,
		limiter: middleware.NewRateLimiter(20, 40),
	}
	if a.Config.Auth.JWTSecret != "" {
		rt.jwt = auth.NewJWTMiddleware(a.Config.Auth.JWTSecret)
	}
	return rt
}

// Close stops the rate limiter's cleanup loop.
func (rt *Router) Close() {
	rt.limiter.Stop()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.app.Config

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(rt.limiter.Limit)

	deps := map[string]handlers.Pinger{}
	if rt.app.DB != nil {
		deps["postgres"] = rt.app.DB
	}
	if rt.app.Redis != nil {
		deps["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rt.app.Redis.Ping(ctx).Err()
		})
	}
	health := handlers.NewHealthHandler(deps)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// The browser form posts here without credentials.
	reportH := handlers.NewReportHandler(rt.app.Pipeline, rt.app.Files, cfg.Server.IndexHTMLPath)
	r.Get("/", reportH.Index)
	r.Post("/generate_report", reportH.GenerateReport)
	r.Get("/download/{fileType}/{fileID}", reportH.Download)

	var q handlers.Enqueuer
	if rt.app.Queue != nil {
		q = rt.app.Queue
	}
	analysisH := handlers.NewAnalysisHandler(rt.app.Store, rt.app.Pipeline, q, rt.app.Files, cfg.Server.MaxUploadMB)
	transcriptionH := handlers.NewTranscriptionHandler(rt.app.Pipeline, rt.app.Files, cfg.Server.MaxUploadMB)

	r.Route("/api/v1", func(r chi.Router) {
		read, write := rt.permission(auth.PermAnalysesRead), rt.permission(auth.PermAnalysesWrite)
		if rt.jwt != nil {
			r.Use(rt.jwt.Authenticate)
		}

		r.Route("/analyses", func(r chi.Router) {
			r.With(write).Post("/", analysisH.Create)
			r.With(read).Get("/", analysisH.List)
			r.With(read).Get("/{id}", analysisH.Get)
			r.With(read).Get("/{id}/events", analysisH.Events)
		})
		r.With(write).Post("/transcriptions", transcriptionH.Create)
	})

	return r
}

func (rt *Router) permission(perm auth.Permission) func(http.Handler) http.Handler {
	if rt.jwt == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return auth.RequirePermission(perm)
}
