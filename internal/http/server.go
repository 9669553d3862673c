package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dailyledger/internal/auth"
	"dailyledger/internal/log"
	"dailyledger/internal/metrics"
	"dailyledger/internal/middleware/ratelimit"
	"dailyledger/internal/middleware/security"
	"dailyledger/internal/middleware/trace"
	"dailyledger/internal/parse"
	"dailyledger/internal/services"
)

const defaultDocumentTitle = "Daily Ledger"

// Deps are the collaborators a Server needs. Ledger is required.
type Deps struct {
	Ledger             *services.LedgerService
	Users              *auth.Directory
	Metrics            *metrics.Metrics
	Logger             *log.Logger
	Dates              *parse.DateParser
	Amounts            *parse.AmountParser
	RateLimitPerMinute int
	DocumentTitle      string
	// RequestTimeout bounds each handler; zero means 30s.
	RequestTimeout time.Duration
}

type Server struct {
	http.Server
	ledger        *services.LedgerService
	users         *auth.Directory
	metrics       *metrics.Metrics
	logger        *log.Logger
	dates         *parse.DateParser
	amounts       *parse.AmountParser
	documentTitle string
	started       time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
}

// NewServer wires the router. Call Shutdown to stop background goroutines.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		ledger:           deps.Ledger,
		users:            deps.Users,
		metrics:          deps.Metrics,
		logger:           deps.Logger,
		dates:            deps.Dates,
		amounts:          deps.Amounts,
		documentTitle:    deps.DocumentTitle,
		started:          time.Now(),
		securityDetector: security.NewDetector(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
	}
	if s.logger == nil {
		s.logger = log.Discard()
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	if s.dates == nil {
		s.dates = parse.NewDateParser(parse.DefaultDateLayouts)
	}
	if s.amounts == nil {
		s.amounts = parse.NewAmountParser(parse.DefaultCurrencyMarkers)
	}
	if s.documentTitle == "" {
		s.documentTitle = defaultDocumentTitle
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.traceMiddleware = trace.NewMiddleware(s.logger, s.securityDetector.ExtractClientIP, s.observeRequest)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(timeout),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(s.traceMiddleware.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.securityDetector.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, CodeNotFound, "not found").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited))
		r.Use(middleware.Timeout(timeout))

		r.Get("/report", s.handleReport)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/monthly", s.handleMonthly)
		r.Get("/categories", s.handleCategories)
		r.Get("/export.csv", s.handleExportCSV)
		r.Get("/export/document", s.handleDocument)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/entries", s.handleCreateEntry)
		})
	})
	return r
}

func (s *Server) observeRequest(r *http.Request, status int, d time.Duration) {
	route := ""
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		route = rctx.RoutePattern()
	}
	s.metrics.ObserveHTTP(r.Method, route, status, d)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited()
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.NewFields().WithClientIP(s.securityDetector.ExtractClientIP(r)).ToSlice()...)
	ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded").Write(w)
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.rateLimiter.Stop()
	return s.Server.Shutdown(ctx)
}
