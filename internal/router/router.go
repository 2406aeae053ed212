// Package router wires the HTTP surface: middleware, the versioned user API,
// health, static uploads and metrics.
package router

import (
	"context"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validator "github.com/go-playground/validator/v10"

	"github.com/patric-chuzhbe/userapi/internal/gzippedhttp"
	"github.com/patric-chuzhbe/userapi/internal/ipchecker"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/metrics"
	"github.com/patric-chuzhbe/userapi/internal/models"
	"github.com/patric-chuzhbe/userapi/internal/ratelimit"
	"github.com/patric-chuzhbe/userapi/internal/service"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

// Response messages shared by several routes.
const (
	MessageRouteNotFound    = "Route not found"
	MessageMethodNotAllowed = "Method not allowed"
	MessageInternalError    = "Internal Server Error"

	backendUp = "up"
)

type userService interface {
	Register(ctx context.Context, registration service.Registration) (*service.Session, error)
	Login(ctx context.Context, email, plaintext string) (*service.Session, error)
	ListUsers(ctx context.Context, search string) ([]*user.User, error)
	UploadProfilePicture(ctx context.Context, userID string, upload io.Reader) (*user.User, error)
}

type healthChecker interface {
	Status(ctx context.Context) map[string]string
}

type authenticator interface {
	Authenticate(h http.Handler) http.Handler
}

// Settings are the plain values the routes need.
type Settings struct {
	APIVersion           string
	ServiceName          string
	Environment          string
	RequestTimeout       time.Duration
	UploadMaxBytes       int64
	ExposeInternalErrors bool

	// TrustProxyHeaders rewrites RemoteAddr from the forwarding headers.
	// Rate limiting and the /metrics guard key on RemoteAddr.
	TrustProxyHeaders bool
}

// Router holds the handlers' dependencies.
type Router struct {
	settings Settings
	service  userService
	health   healthChecker
	validate *validator.Validate
	now      func() time.Time

	gate        authenticator
	limiter     *ratelimit.Limiter
	collector   *metrics.Collector
	metricsView http.Handler
	ipChecker   *ipchecker.IPChecker
	uploads     http.Handler
}

// Option configures New.
type Option func(*Router)

// WithRateLimiter throttles /register and /login.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(r *Router) {
		r.limiter = limiter
	}
}

// WithMetrics records request metrics and serves view on /metrics to the
// trusted subnet of checker.
func WithMetrics(collector *metrics.Collector, view http.Handler, checker *ipchecker.IPChecker) Option {
	return func(r *Router) {
		r.collector = collector
		r.metricsView = view
		r.ipChecker = checker
	}
}

// WithUploads serves stored files under /uploads/.
func WithUploads(handler http.Handler) Option {
	return func(r *Router) {
		r.uploads = handler
	}
}

// WithClock replaces time.Now in health responses.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// New builds the HTTP handler.
func New(
	settings Settings,
	userService userService,
	gate authenticator,
	health healthChecker,
	opts ...Option,
) *chi.Mux {
	r := &Router{
		settings: settings,
		service:  userService,
		gate:     gate,
		health:   health,
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if settings.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(
		logger.WithLoggingHTTPMiddleware,
		r.recoverer,
	)
	if r.collector != nil {
		router.Use(r.collector.Middleware)
	}
	router.Use(
		gzippedhttp.DecompressRequest,
		middleware.Compress(5, "application/json", "text/plain"),
		r.withRequestTimeout,
	)

	router.NotFound(func(response http.ResponseWriter, request *http.Request) {
		models.WriteError(response, http.StatusNotFound, MessageRouteNotFound)
	})
	router.MethodNotAllowed(func(response http.ResponseWriter, request *http.Request) {
		models.WriteError(response, http.StatusMethodNotAllowed, MessageMethodNotAllowed)
	})

	router.Get("/health", r.GetHealth)

	if r.uploads != nil {
		router.Get("/uploads/*", r.uploads.ServeHTTP)
	}

	if r.metricsView != nil && r.ipChecker != nil {
		router.With(r.ipChecker.TrustedSubnetOnly).Get("/metrics", r.metricsView.ServeHTTP)
	}

	base := strings.TrimSuffix(settings.APIVersion, "/")
	mountAPI := func(api chi.Router) {
		api.With(r.rateLimited(base+"/register")).Post("/register", r.PostRegister)
		api.With(r.rateLimited(base+"/login")).Post("/login", r.PostLogin)

		api.Group(func(protected chi.Router) {
			protected.Use(r.gate.Authenticate)
			protected.Get("/users", r.GetUsers)
			protected.Post("/upload-profile-picture", r.PostUploadProfilePicture)
		})
	}
	if base == "" {
		router.Group(mountAPI)
	} else {
		router.Route(base, mountAPI)
	}

	return router
}

func (r *Router) rateLimited(route string) func(http.Handler) http.Handler {
	if r.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return r.limiter.Middleware(route)
}

func (r *Router) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				logger.Log.Errorw(
					"panic recovered",
					"panic", recovered,
					"method", request.Method,
					"path", request.URL.Path,
					"stack", string(debug.Stack()),
				)
				models.WriteError(response, http.StatusInternalServerError, MessageInternalError)
			}
		}()

		next.ServeHTTP(response, request)
	})
}

// withRequestTimeout bounds every backend call made while serving a request.
func (r *Router) withRequestTimeout(next http.Handler) http.Handler {
	if r.settings.RequestTimeout <= 0 {
		return next
	}

	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		ctx, cancel := context.WithTimeout(request.Context(), r.settings.RequestTimeout)
		defer cancel()

		next.ServeHTTP(response, request.WithContext(ctx))
	})
}

func (r *Router) writeSuccess(response http.ResponseWriter, status int, message string, data interface{}) {
	models.WriteEnvelope(response, status, models.NewEnvelope(false, message, data))
}

// GetHealth reports liveness together with the state of every backend.
func (r *Router) GetHealth(response http.ResponseWriter, request *http.Request) {
	backends := map[string]string{}
	if r.health != nil {
		backends = r.health.Status(request.Context())
	}

	status, message := "OK", "Service is healthy"
	for _, state := range backends {
		if state != backendUp {
			status, message = "DEGRADED", "Service is degraded"
			break
		}
	}

	r.writeSuccess(response, http.StatusOK, message, models.HealthResponse{
		Status:      status,
		Service:     r.settings.ServiceName,
		Environment: r.settings.Environment,
		Timestamp:   r.now().UTC().Format(time.RFC3339Nano),
		Backends:    backends,
	})
}
