package orchestrator

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/local/pdf2img/internal/apperr"
	"github.com/local/pdf2img/internal/logger"
)

// HTTPOptions configures the middleware stack around the routes.
type HTTPOptions struct {
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit   int
	CORSOrigins []string
	// Logger adds request ids and the access log when set.
	Logger *logger.Logger
}

// Wrap applies recovery, client IP resolution, request logging, CORS and
// per-IP rate limiting to h, outermost first.
func Wrap(h http.Handler, opts HTTPOptions) http.Handler {
	if opts.RateLimit > 0 {
		h = httprate.Limit(opts.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				WriteError(w, r, apperr.New(apperr.RateLimited, "rate limit exceeded, retry later"))
			}),
		)(h)
	}
	if len(opts.CORSOrigins) > 0 {
		h = cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", logger.RequestIDHeader},
			ExposedHeaders: []string{logger.RequestIDHeader},
			MaxAge:         300,
		})(h)
	}
	if opts.Logger != nil {
		h = opts.Logger.Middleware(h)
	}
	h = middleware.RealIP(h)
	return middleware.Recoverer(h)
}
