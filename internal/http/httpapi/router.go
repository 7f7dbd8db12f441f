package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vidgen/internal/http/handlers"
	"vidgen/internal/middleware"
)

// Options carries the router tunables that come from configuration.
type Options struct {
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	AllowedOrigins  []string
	RateLimitPerMin int
}

// NewRouter wires the public and authenticated route groups.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.Locale(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", app.Register)
		r.Post("/login", app.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.JWTSecret))

		r.Get("/v1/me", app.Me)

		r.Route("/v1/videos", func(r chi.Router) {
			limit := opts.RateLimitPerMin
			if limit <= 0 {
				limit = 10
			}
			r.With(middleware.RateLimit(limit, time.Minute)).Post("/", app.VideosGenerate)
			r.Get("/", app.VideosList)
			r.Get("/{video_id}", app.VideoByID)
		})
	})

	return r
}
