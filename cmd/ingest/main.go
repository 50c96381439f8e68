package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmanzanog/price-reconciler/internal/application"
	"github.com/jmanzanog/price-reconciler/internal/domain"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/config"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/httpx"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata/alphavantage"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata/binance"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata/finnhub"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata/ratelimit"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata/twelvedata"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/marketdata/yahoo"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/metrics"
	persistence "github.com/jmanzanog/price-reconciler/internal/infrastructure/persistence/gorm"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/persistence/memory"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/persistence/records"
	redisstore "github.com/jmanzanog/price-reconciler/internal/infrastructure/persistence/redis"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/persistence/sqldb"
	"github.com/jmanzanog/price-reconciler/internal/infrastructure/referencesite"
	httpHandler "github.com/jmanzanog/price-reconciler/internal/interfaces/http"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	_ "github.com/sijms/go-ora/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const usage = `usage: ingest [command] [flags]

commands:
  serve         run the HTTP API and the cron scheduler (default)
  refresh       run one refresh cycle, or one instrument with -name
  sync          synchronise indices and their components
  show-indices  print every index on the reference site, unfiltered
`

var logLevel = new(slog.LevelVar)

// setupLogger configures and returns a structured logger with source information
func setupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// closer releases a resource opened during startup.
type closer func() error

// initializeDatabase opens the instrument store selected by DB_DRIVER and
// runs its migrations.
func initializeDatabase(cfg *config.Config) (domain.InstrumentRepository, closer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cfg.DBDriver {
	case config.DBDriverMemory:
		return memory.NewInstrumentRepository(), func() error { return nil }, nil
	case config.DBDriverSQLite:
		return initializeSQLite(cfg)
	}

	db, err := sqldb.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}

	repo := sqldb.NewRepository(db)
	if err := repo.AutoMigrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, db.Close, nil
}

func initializeSQLite(cfg *config.Config) (domain.InstrumentRepository, closer, error) {
	dsn := cfg.DBDSN
	if dsn == "" {
		dsn = "price-reconciler.db"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	repo := persistence.NewGormRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repo, sqlDB.Close, nil
}

// initializeRecordStore returns the key/value store holding close series.
func initializeRecordStore(ctx context.Context, cfg *config.Config) (records.Store, closer, error) {
	if cfg.RecordStore == config.RecordStoreMemory {
		return memory.NewRecordStore(), func() error { return nil }, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    strings.Split(cfg.RedisAddr, ","),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := redisstore.NewRecordStore(client, cfg.RedisPrefix)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}
	return store, client.Close, nil
}

// buildManager registers every configured price source in SOURCE_ORDER.
// Sources whose credentials are missing are left out.
func buildManager(cfg *config.Config, m *metrics.Metrics) *marketdata.Manager {
	hc := httpx.New(cfg.HTTPTimeout).HTTP
	var regs []marketdata.Registration

	av := alphavantage.NewClientWithHTTPClient(cfg.AlphaVantageAPIKey, hc, ratelimit.NewGate(cfg.AlphaVantageMinGap))
	av.SetBaseURL(cfg.AlphaVantageURL)
	regs = append(regs, marketdata.Registration{Provider: av, Kinds: marketdata.FiatKinds})

	yf := yahoo.NewClientWithHTTPClient(hc, ratelimit.NewGate(cfg.ProviderMinGap))
	yf.SetBaseURL(cfg.YahooBaseURL)
	regs = append(regs, marketdata.Registration{Provider: yf, Kinds: marketdata.FiatKinds})

	if cfg.TwelveDataAPIKey != "" {
		td := twelvedata.NewClientWithHTTPClient(cfg.TwelveDataAPIKey, hc, ratelimit.NewGate(cfg.ProviderMinGap))
		td.SetBaseURL(cfg.TwelveDataURL)
		regs = append(regs, marketdata.Registration{Provider: td, Kinds: marketdata.FiatKinds})
	} else {
		slog.Warn("TWELVE_DATA_API_KEY not set, twelvedata source disabled")
	}

	if cfg.FinnhubAPIKey != "" {
		fh := finnhub.NewClientWithHTTPClient(cfg.FinnhubAPIKey, hc, ratelimit.NewGate(cfg.ProviderMinGap))
		fh.SetBaseURL(cfg.FinnhubURL)
		regs = append(regs, marketdata.Registration{Provider: fh, Kinds: marketdata.FiatKinds})
	} else {
		slog.Warn("FINNHUB_API_KEY not set, finnhub source disabled")
	}

	bn := binance.NewClientWithHTTPClient(hc, ratelimit.NewGate(cfg.ProviderMinGap))
	bn.SetBaseURL(cfg.BinanceURL)
	regs = append(regs, marketdata.Registration{Provider: bn, Kinds: marketdata.CryptoKinds})

	manager := marketdata.NewManager(m, marketdata.Ordered(cfg.SourceOrder, regs...)...)
	slog.Info("Using price sources", "order", manager.Sources())
	return manager
}

func buildReferenceClient(cfg *config.Config) *referencesite.Client {
	client := referencesite.NewClientWithHTTPClient(
		cfg.ReferenceSiteURL,
		httpx.New(cfg.HTTPTimeout).HTTP,
		ratelimit.NewGate(cfg.ReferenceSiteMinGap),
		cfg.Filters,
	)
	client.SetDetailPause(cfg.ReferenceSitePause)
	return client
}

// buildServer creates and configures the HTTP server with all routes and handlers
func buildServer(cfg *config.Config, handler *httpHandler.Handler, m *metrics.Metrics) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	httpHandler.SetupRoutes(router, handler, m.Handler())

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// services bundles everything the commands share.
type services struct {
	instruments domain.InstrumentRepository
	series      *records.SeriesStore
	ingestion   *application.IngestionService
	indexSync   *application.IndexSyncService
	metrics     *metrics.Metrics
	closers     []closer
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
}

func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	s := &services{metrics: metrics.New()}

	repo, closeDB, err := initializeDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}
	s.closers = append(s.closers, closeDB)
	s.instruments = repo

	store, closeStore, err := initializeRecordStore(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("record store initialization failed: %w", err)
	}
	s.closers = append(s.closers, closeStore)
	s.series = records.NewSeriesStore(store)

	s.ingestion = application.NewIngestionService(repo, s.series, buildManager(cfg, s.metrics), s.metrics, application.IngestionOptions{
		Tolerance:       cfg.PriceTolerance,
		FreshnessWindow: cfg.FreshnessWindow,
		Concurrency:     cfg.RefreshConcurrency,
	})
	s.indexSync = application.NewIndexSyncService(repo, buildReferenceClient(cfg), s.metrics)
	return s, nil
}

// App wraps the application components for easier testing
type App struct {
	Server        *http.Server
	Scheduler     *application.Scheduler
	CancelContext context.CancelFunc
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down application...")

	a.Scheduler.Stop()
	a.CancelContext()

	if err := a.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	return nil
}

func serve(cfg *config.Config, svc *services) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := application.NewScheduler(svc.ingestion, svc.indexSync)
	if err := scheduler.Register(cfg.RefreshSchedule, cfg.SyncSchedule); err != nil {
		return err
	}
	scheduler.Start(ctx)

	handler := httpHandler.NewHandler(svc.instruments, svc.series, svc.ingestion, svc.indexSync)
	server := buildServer(cfg, handler, svc.metrics)

	app := &App{
		Server:        server,
		Scheduler:     scheduler,
		CancelContext: cancel,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "host", cfg.ServerHost, "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		scheduler.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		slog.Info("Received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("Server exited gracefully")
	return nil
}

func refresh(ctx context.Context, svc *services, name string, out io.Writer) error {
	if name != "" {
		outcome := svc.ingestion.RefreshInstrument(ctx, name)
		_, _ = fmt.Fprintf(out, "%-30s %s\n", outcome.Name, outcome.Status)
		if outcome.Status == application.StatusFailed {
			return errors.New(outcome.Error)
		}
		return nil
	}

	report, err := svc.ingestion.RefreshAll(ctx)
	if report != nil {
		for _, o := range report.Outcomes {
			_, _ = fmt.Fprintf(out, "%-30s %s\n", o.Name, o.Status)
		}
	}
	return err
}

func syncIndices(ctx context.Context, svc *services, out io.Writer) error {
	report, err := svc.indexSync.SyncIndices(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "indices: %d, created: %d, updated: %d, up to date: %d, failed: %d, changed: %s\n",
		report.Indices, report.Created, report.Updated, report.UpToDate, report.Failed,
		strings.Join(report.ChangedIndices, ", "))
	return nil
}

func showIndices(ctx context.Context, svc *services, out io.Writer) error {
	indices, err := svc.indexSync.ListIndices(ctx)
	if err != nil {
		return err
	}
	for _, idx := range indices {
		_, _ = fmt.Fprintf(out, "%-25s %q\n", idx.Country, idx.Name)
	}
	return nil
}

// run contains the main application logic without os.Exit calls
// This makes it testeable
func run(args []string, out io.Writer) error {
	setupLogger()

	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { _, _ = fmt.Fprint(out, usage) }
	name := fs.String("name", "", "refresh a single instrument by name")
	envFile := fs.String("env", ".env", "dotenv file loaded before the environment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch command {
	case "serve", "refresh", "sync", "show-indices":
	default:
		fs.Usage()
		return fmt.Errorf("unknown command: %s", command)
	}

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logLevel.Set(level)

	if command == "serve" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	switch command {
	case "refresh":
		return refresh(ctx, svc, *name, out)
	case "sync":
		return syncIndices(ctx, svc, out)
	case "show-indices":
		return showIndices(ctx, svc, out)
	default:
		stop()
		return serve(cfg, svc)
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}
