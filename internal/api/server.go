// Package api exposes the HTTP JSON surface of the webstack backend:
// upstream proxies (Stripe, Ahrefs, Google, BRON), marketing forms,
// visitor tracking, the site-audit job API, and the health monitor
// surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/audit"
	"github.com/Blackwoodproductions/webstack-services/internal/auth"
	"github.com/Blackwoodproductions/webstack-services/internal/bron"
	"github.com/Blackwoodproductions/webstack-services/internal/config"
	"github.com/Blackwoodproductions/webstack-services/internal/dispatcher"
	"github.com/Blackwoodproductions/webstack-services/internal/health"
	"github.com/Blackwoodproductions/webstack-services/internal/kwcache"
	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
	"github.com/Blackwoodproductions/webstack-services/internal/store"
	"github.com/Blackwoodproductions/webstack-services/internal/upstream/ahrefs"
	"github.com/Blackwoodproductions/webstack-services/internal/upstream/google"
	"github.com/Blackwoodproductions/webstack-services/internal/upstream/stripe"
	"github.com/Blackwoodproductions/webstack-services/internal/visitors"
)

// CheckoutClient creates Stripe Checkout sessions.
type CheckoutClient interface {
	CreateCheckoutSession(ctx context.Context, p stripe.CheckoutParams) (stripe.CheckoutSession, error)
}

// SEOMetricsClient fetches aggregated domain metrics from Ahrefs.
type SEOMetricsClient interface {
	DomainMetrics(ctx context.Context, domain string) (ahrefs.DomainMetrics, error)
}

// GoogleProxy forwards Business Profile and Search Console actions.
type GoogleProxy interface {
	Business(ctx context.Context, req google.BusinessRequest) (json.RawMessage, int, error)
	SearchConsole(ctx context.Context, req google.SearchConsoleRequest) (json.RawMessage, int, error)
}

// BronGateway talks to the BRON link-building upstream.
type BronGateway interface {
	Login(ctx context.Context, email, password string) (string, error)
	Do(ctx context.Context, upstreamToken, action string, params map[string]any) (json.RawMessage, int, error)
}

// HealthMonitor is the monitor surface the API exposes.
type HealthMonitor interface {
	Statuses() []health.CheckStatus
	RunOnce(ctx context.Context) []health.CheckStatus
}

// AlertLister pages through raised health alerts.
type AlertLister interface {
	List(ctx context.Context, openOnly bool, limit, offset int) ([]health.Alert, error)
}

// PageviewRecorder appends visitor pageview events.
type PageviewRecorder interface {
	RecordPageview(ctx context.Context, event visitors.PageviewEvent) error
}

// Deps bundles every collaborator the server routes to.
type Deps struct {
	Stripe     CheckoutClient
	Ahrefs     SEOMetricsClient
	Google     GoogleProxy
	Bron       BronGateway
	Bridge     *bron.Bridge
	KwCache    *kwcache.Cache
	Monitor    HealthMonitor
	Alerts     AlertLister
	Leads      *store.LeadRepo
	Apps       *store.ApplicationRepo
	Directory  *store.DirectoryRepo
	Chat       *store.ChatRepo
	Visitors   *store.VisitorRepo
	Changelog  *store.ChangelogRepo
	Pageviews  PageviewRecorder
	Jobs       audit.JobStore
	Dispatcher *dispatcher.Dispatcher
	Blobs      audit.BlobStore
	IDs        audit.IDGenerator
	Clock      audit.Clock
	Tokens     *auth.TokenProvider
}

// Server wires HTTP handlers to the service's subsystems.
type Server struct {
	router   chi.Router
	deps     Deps
	cfg      config.Config
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg config.Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:     deps,
		cfg:      cfg,
		validate: newValidator(),
		logger:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(cfg.Server.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	bearer := passthrough
	adminKey := passthrough
	if cfg.Auth.Enabled {
		bearer = auth.Bearer(deps.Tokens)
		adminKey = auth.APIKey(cfg.Auth.APIKey)
	}

	r.Route("/v1", func(r chi.Router) {
		// Dashboard endpoints ride the platform session token.
		r.Group(func(r chi.Router) {
			r.Use(bearer)
			r.Post("/checkout/sessions", s.createCheckoutSession)
			r.Post("/seo/metrics", s.seoMetrics)
			r.Post("/business-profile", s.businessProfile)
			r.Post("/search-console", s.searchConsole)
		})

		r.Route("/bron", func(r chi.Router) {
			r.Post("/auth", s.bronAuth)
			r.Post("/proxy", s.bronProxy)
			r.Post("/refresh", s.bronRefresh)
			r.Post("/logout", s.bronLogout)
		})

		r.Post("/leads", s.createLead)
		r.Post("/applications/job", s.createJobApplication)
		r.Post("/applications/partner", s.createPartnerApplication)

		r.Route("/directory/listings", func(r chi.Router) {
			r.Get("/", s.listDirectory)
			r.Post("/", s.createListing)
			r.With(adminKey).Patch("/{listing_id}", s.updateListingStatus)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/sessions", s.createChatSession)
			r.Get("/sessions/{session_id}", s.getChatSession)
			r.Post("/sessions/{session_id}/messages", s.appendChatMessage)
		})

		r.Route("/visitors", func(r chi.Router) {
			r.Post("/sessions", s.createVisitorSession)
			r.Post("/events", s.recordPageview)
			r.Post("/{session_id}/enrich", s.enrichVisitor)
		})

		r.Get("/changelog", s.listChangelog)
		r.With(adminKey).Post("/changelog", s.createChangelogEntry)

		r.Route("/audits", func(r chi.Router) {
			r.Post("/", s.submitAudit)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.auditStatus)
				r.Get("/result", s.auditResult)
				r.Post("/cancel", s.cancelAudit)
			})
		})

		r.Route("/health", func(r chi.Router) {
			r.Get("/checks", s.healthChecks)
			r.Get("/alerts", s.healthAlerts)
			r.With(adminKey).Post("/run", s.healthRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Applicants pasting a one-liner is the most common junk submission.
	_ = v.RegisterValidation("coverletter", func(fl validator.FieldLevel) bool {
		return len(strings.TrimSpace(fl.Field().String())) >= 50
	})
	return v
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func passthrough(next http.Handler) http.Handler {
	return next
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type requestIDKey struct{}

func decodeJSON(r *http.Request, dest any) error {
	return json.NewDecoder(r.Body).Decode(dest)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
