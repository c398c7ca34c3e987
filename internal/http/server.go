package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"expensedash/internal/amqp"
	"expensedash/internal/api"
	"expensedash/internal/cache"
	"expensedash/internal/config"
	"expensedash/internal/core"
	applog "expensedash/internal/log"
	"expensedash/internal/middleware/ratelimit"
	"expensedash/internal/middleware/security"
	"expensedash/internal/middleware/trace"
	"expensedash/internal/storage"
	appweb "expensedash/web"
)

// Backend is the slice of the expense backend the dashboard uses.
// *api.Client implements it.
type Backend interface {
	Register(ctx context.Context, email, password string) (core.User, error)
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Me(ctx context.Context, token string) (core.User, error)

	CreateExpense(ctx context.Context, token string, in core.ExpenseInput) (core.Expense, error)
	MonthExpenses(ctx context.Context, token string, m core.Month) (core.MonthData, error)
	UpdateExpense(ctx context.Context, token, id string, in core.ExpenseInput) (core.Expense, error)
	DeleteExpense(ctx context.Context, token, id string) error

	MonthlyReport(ctx context.Context, token string, m core.Month) (core.Report, error)
	TriggerLambda(ctx context.Context, token string) (core.TriggerResult, error)
	LambdaStatus(ctx context.Context, token string) (core.LambdaStatus, error)
	Notifications(ctx context.Context, token string, m core.Month) (core.NotificationList, error)

	SchedulerStatus(ctx context.Context, token string) (core.SchedulerStatus, error)
	StartScheduler(ctx context.Context, token string) (core.ActionResult, error)
	StopScheduler(ctx context.Context, token string) (core.ActionResult, error)
	UpdateSchedule(ctx context.Context, token string, s core.Schedule) (core.ActionResult, error)
	Thresholds(ctx context.Context, token string) (core.Thresholds, error)
	UpdateThresholds(ctx context.Context, token string, th core.Thresholds) (core.Thresholds, error)
}

// ActivityPublisher receives one message per successful user mutation.
// *amqp.Client implements it.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, msg *amqp.ActivityMessage) error
}

// Options are the server settings taken from configuration.
type Options struct {
	Addr                string
	CookieSecure        bool
	SessionTTL          time.Duration
	UserRefreshInterval time.Duration
	MonthCacheTTL       time.Duration
	RateLimitPerMinute  int
}

// OptionsFromConfig maps the application configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Addr:                cfg.Addr(),
		CookieSecure:        cfg.CookieSecure,
		SessionTTL:          cfg.SessionTTL,
		UserRefreshInterval: cfg.UserRefreshInterval,
		MonthCacheTTL:       cfg.MonthCacheTTL,
		RateLimitPerMinute:  cfg.RateLimitPerMinute,
	}
}

// Deps are the collaborators the server calls into. Publisher, Logger and
// Metrics may be nil.
type Deps struct {
	Backend   Backend
	Sessions  storage.Store
	Publisher ActivityPublisher
	Logger    *applog.Logger
	Metrics   *trace.Metrics
}

type Server struct {
	http.Server

	opts      Options
	backend   Backend
	sessions  storage.Store
	publisher ActivityPublisher
	logger    *applog.Logger
	metrics   *trace.Metrics
	now       func() time.Time

	partials *template.Template
	pages    map[string]*template.Template

	monthCache *cache.LRUCache[core.MonthData]
	dismissed  *cache.LRUCache[map[string]bool]
	flashes    *cache.LRUCache[string]
	caches     *cache.Manager

	limiter  *ratelimit.Limiter
	detector *security.Detector

	publishing   sync.WaitGroup
	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and wires the routes.
func NewServer(opts Options, deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = trace.NewMetrics()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.MonthCacheTTL <= 0 {
		opts.MonthCacheTTL = 30 * time.Second
	}

	partials, pages, err := parseTemplates(appweb.TemplatesFS)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:       opts,
		backend:    deps.Backend,
		sessions:   deps.Sessions,
		publisher:  deps.Publisher,
		logger:     logger.WithComponent(applog.ComponentHTTP),
		metrics:    metrics,
		now:        time.Now,
		partials:   partials,
		pages:      pages,
		monthCache: cache.NewLRUCache[core.MonthData](500, opts.MonthCacheTTL),
		dismissed:  cache.NewLRUCache[map[string]bool](1000, opts.SessionTTL),
		flashes:    cache.NewLRUCache[string](1000, time.Minute),
		caches:     cache.NewManager(logger),
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:   security.NewDetector(logger),
	}
	s.caches.Register(s.monthCache)
	s.caches.Register(s.dismissed)
	s.caches.Register(s.flashes)

	mux := http.NewServeMux()
	s.routes(mux)

	tracer := trace.NewMiddleware(s.detector.ClientIP, metrics, logger)
	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ClientIP, s.onRateLimited)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NoStore(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssets(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /register", s.handleRegisterPage)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.HandleFunc("GET /dashboard", s.requireSession(s.handleDashboard))
	mux.HandleFunc("GET /ui/dashboard", s.requireSession(s.handleDashboardPartial))
	mux.HandleFunc("GET /ui/summary", s.requireSession(s.handleSummaryPartial))
	mux.HandleFunc("GET /ui/expenses", s.requireSession(s.handleExpenseTable))

	mux.HandleFunc("GET /expenses/new", s.requireSession(s.handleNewExpense))
	mux.HandleFunc("POST /expenses", s.requireSession(s.handleCreateExpense))
	mux.HandleFunc("GET /ui/expenses/{id}", s.requireSession(s.handleExpenseRow))
	mux.HandleFunc("GET /ui/expenses/{id}/edit", s.requireSession(s.handleEditExpense))
	mux.HandleFunc("PUT /ui/expenses/{id}", s.requireSession(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /ui/expenses/{id}", s.requireSession(s.handleDeleteExpense))

	mux.HandleFunc("GET /ui/notifications", s.requireSession(s.handleNotifications))
	mux.HandleFunc("GET /ui/notifications/count", s.requireSession(s.handleNotificationCount))
	mux.HandleFunc("POST /ui/notifications/{id}/dismiss", s.requireSession(s.handleDismissNotification))

	mux.HandleFunc("GET /reports", s.requireSession(s.handleReportsPage))
	mux.HandleFunc("GET /ui/report", s.requireSession(s.handleReportPartial))

	mux.HandleFunc("GET /lambda", s.requireSession(s.handleLambdaPage))
	mux.HandleFunc("POST /lambda/trigger", s.requireSession(s.handleLambdaTrigger))

	mux.HandleFunc("GET /settings", s.requireSession(s.handleSettingsPage))
	mux.HandleFunc("POST /settings/scheduler/start", s.requireSession(s.handleSchedulerStart))
	mux.HandleFunc("POST /settings/scheduler/stop", s.requireSession(s.handleSchedulerStop))
	mux.HandleFunc("POST /settings/scheduler/schedule", s.requireSession(s.handleScheduleUpdate))
	mux.HandleFunc("POST /settings/thresholds", s.requireSession(s.handleThresholdsUpdate))
}

// Start begins background cache sweeping. It does not block.
func (s *Server) Start(ctx context.Context) {
	s.caches.Start(ctx, time.Minute)
}

// Shutdown stops accepting requests, waits for in-flight activity publishes
// and stops the background loops.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)

		done := make(chan struct{})
		go func() {
			s.publishing.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("Shutdown deadline reached with activity publishes pending")
		}

		s.caches.Stop()
		s.limiter.Stop()
	})
	return shutdownErr
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	if isHTMX(r) {
		const msg = "Too many requests. Please wait a moment and try again."
		ErrorResponse(http.StatusTooManyRequests, msg).TriggerErrorNotification(msg).Write(w)
		return
	}
	http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
}
