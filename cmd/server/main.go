package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/yourorg/reader-bridge/internal/bridge"
	"github.com/yourorg/reader-bridge/internal/call"
	"github.com/yourorg/reader-bridge/internal/config"
	"github.com/yourorg/reader-bridge/internal/dispatcher"
	"github.com/yourorg/reader-bridge/internal/host"
	"github.com/yourorg/reader-bridge/internal/monitor"
	"github.com/yourorg/reader-bridge/internal/reporting"
	"github.com/yourorg/reader-bridge/internal/sdk"
	"github.com/yourorg/reader-bridge/internal/sdk/mock"
	"github.com/yourorg/reader-bridge/internal/telemetry"
)

const serviceName = "reader-bridge"

func init() {
	// Amounts go out as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// trackSession mirrors login results onto the mock terminal, which never
// sees the activity result itself.
func trackSession(term *mock.Terminal) func(*call.Call) {
	return func(c *call.Call) {
		if c.Method != dispatcher.OpLogin {
			return
		}
		if out, ok := c.Outcome(); ok && out.Succeeded() {
			term.SetLoggedIn(true)
		}
	}
}

func setupRouter(s *server, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName), s.accessLog())

	reader := router.Group("/v1/reader")
	reader.POST("/setup", s.operation(s.bridge.Setup))
	reader.POST("/login", s.login)
	reader.POST("/logout", s.operation(s.bridge.Logout))
	reader.GET("/session", s.operation(s.bridge.IsLoggedIn))
	reader.POST("/card-reader-page", s.operation(s.bridge.OpenCardReaderPage))
	reader.POST("/prepare", s.operation(s.bridge.PrepareForCheckout))
	reader.POST("/checkout", s.checkout)
	reader.POST("/close", s.operation(s.bridge.CloseConnection))
	reader.POST("/activity-result", s.activityResult)
	reader.GET("/report", s.report)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return router
}

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := telemetry.SetupTracing(telemetry.TracingConfig{
		Enabled: cfg.Tracing.Enabled,
		Pretty:  cfg.Tracing.Pretty,
	})
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(promRegistry)

	policy, err := cfg.CheckoutPolicy()
	if err != nil {
		logger.Fatal("invalid checkout rules", zap.Error(err))
	}
	contracts, err := monitor.LoadContracts()
	if err != nil {
		logger.Fatal("failed to load request contracts", zap.Error(err))
	}

	looper := host.NewLooper(cfg.Host.ActivityName, cfg.Host.UIQueueSize)
	looper.Start()
	defer looper.Stop()

	// The development server drives the scriptable terminal; activity
	// results are posted to /v1/reader/activity-result.
	opts := bridge.Options{
		Host:    host.NewForeground(looper),
		Policy:  policy,
		Logger:  logger,
		Metrics: metrics,
		Ledger:  reporting.NewLedger(cfg.Server.LedgerCapacity),
	}
	var terminal sdk.Terminal
	if !cfg.Host.Unavailable {
		term := mock.NewTerminal()
		opts.Observers = append(opts.Observers, trackSession(term))
		terminal = term
	}
	b := bridge.New(terminal, opts)

	s := &server{
		bridge:      b,
		contracts:   contracts,
		callTimeout: cfg.Server.CallTimeout,
		logger:      logger.Named("http"),
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           setupRouter(s, promRegistry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr), zap.Bool("reader_available", b.Available()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown failed", zap.Error(err))
	}
}
