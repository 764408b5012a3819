// Package http serves the ledger dashboard and its JSON API.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"harvester/internal/cache"
	"harvester/internal/core"
	"harvester/internal/log"
	"harvester/internal/middleware/ratelimit"
	"harvester/internal/middleware/security"
	"harvester/internal/reminder"
	"harvester/internal/services"
	"harvester/internal/share"
	appweb "harvester/web"
)

// Options tunes NewServer. Zero values fall back to defaults.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// ReminderDays is the backup age that turns the dashboard warning on.
	ReminderDays      int
	RequestsPerMinute int
	SummaryCacheSize  int
	SummaryCacheTTL   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Addr == "" {
		o.Addr = ":8080"
	}
	if len(o.AllowedOrigins) == 0 {
		o.AllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	if o.ReminderDays <= 0 {
		o.ReminderDays = reminder.DefaultDays
	}
	if o.RequestsPerMinute <= 0 {
		o.RequestsPerMinute = ratelimit.DefaultConfig().RequestsPerMinute
	}
	if o.SummaryCacheSize <= 0 {
		o.SummaryCacheSize = 100
	}
	if o.SummaryCacheTTL <= 0 {
		o.SummaryCacheTTL = 5 * time.Minute
	}
	return o
}

type Server struct {
	http.Server
	ledger    *services.LedgerService
	sender    share.Sender
	templates *template.Template
	summaries *cache.SummaryCache
	caches    *cache.Manager
	limiter   *ratelimit.Limiter
	clientIP  *security.ClientIP
	metrics   *metrics
	logger    *log.Logger

	reminderDays int
	now          func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware around ledger. sender may be nil when
// direct WhatsApp delivery is not configured.
func NewServer(ledger *services.LedgerService, sender share.Sender, opts Options) *Server {
	opts = opts.withDefaults()

	s := &Server{
		ledger:       ledger,
		sender:       sender,
		summaries:    cache.NewSummaryCache(ledger.Store(), opts.SummaryCacheSize, opts.SummaryCacheTTL),
		caches:       cache.NewManager(),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		clientIP:     security.NewClientIP(),
		metrics:      newMetrics(ledger.Store()),
		logger:       log.WithComponent(log.ComponentHTTP),
		reminderDays: opts.ReminderDays,
		now:          time.Now,
	}
	s.caches.Register(s.summaries)
	s.caches.StartCleanup(10 * time.Minute)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(log.Middleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{warningHeader, "Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(s.limiter.Middleware(s.clientIP.Extract, s.rateLimited))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		r.With(security.StaticAssetMiddleware(3600)).
			Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/farmers", func(r chi.Router) {
			r.Get("/", s.handleListFarmers)
			r.Post("/", s.handleSaveFarmer)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetFarmer)
				r.Put("/", s.handleSaveFarmer)
				r.Delete("/", s.handleDeleteFarmer)
				r.Get("/share", s.handleShareText)
				r.Post("/share", s.handleShareSend)
				r.Get("/receipt.png", s.handleReceipt)
			})
		})
		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", s.handleListExpenses)
			r.Post("/", s.handleSaveExpense)
			r.Put("/{id}", s.handleSaveExpense)
			r.Delete("/{id}", s.handleDeleteExpense)
		})
		r.Get("/suggestions", s.handleSuggestions)
		r.Get("/summary", s.handleSummary)
		r.Get("/charts", s.handleCharts)
		r.Get("/export.xlsx", s.handleExport)
		r.Get("/database", s.handleDownloadDatabase)
		r.Post("/database", s.handleImportDatabase)
		r.Get("/backup", s.handleBackupStatus)
	})
	return r
}

// Shutdown stops background sweeps and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.rateLimited.Inc()
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.clientIP.Extract(r),
		log.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later", "")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady fails until templates are parsed and at least one replica is
// attached; without a replica no change would survive a restart.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusServiceUnavailable)
		return
	}
	if len(s.ledger.Store().Replicas()) == 0 {
		http.Error(w, "no replica attached", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type dashboard struct {
	Today    string
	Summary  core.Summary
	Farmers  []farmerView
	Expenses []core.ExpenseRecord
	Places   []string
	Crops    []string
	Backup   string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.templates == nil {
		log.FromContext(ctx).ErrorContext(ctx, "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	st := s.ledger.Store()
	farmers := st.Farmers(core.Filter{})
	places, crops := core.Suggestions(farmers)
	summary, _ := s.summary(core.Filter{})
	data := dashboard{
		Today:    core.DateOf(s.now()).Key(),
		Summary:  summary,
		Farmers:  s.farmerViews(farmers),
		Expenses: st.Expenses(),
		Places:   places,
		Crops:    crops,
	}
	if status, err := s.ledger.BackupStatus(ctx, s.reminderDays); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Backup status unavailable", log.FieldError, err)
	} else {
		data.Backup = status.Message()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Index template execution failed",
			log.FieldError, err)
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
	}
}

var templateFuncs = template.FuncMap{
	"rupees": core.FormatRupees,
	"acres":  core.FormatAcres,
}
