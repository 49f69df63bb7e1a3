package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hackops/internal/apiclient"
	"hackops/internal/audit"
	"hackops/internal/auth"
	"hackops/internal/checkin"
	"hackops/internal/config"
	"hackops/internal/directory"
	"hackops/internal/httpmiddleware"
	"hackops/internal/identify"
	"hackops/internal/logging"
	"hackops/internal/metrics"
	"hackops/internal/nfc"
	"hackops/internal/nfc/pcsc"
	"hackops/internal/points"
	"hackops/internal/queue"
	"hackops/internal/settings"
	"hackops/internal/station"
	"hackops/internal/store"
	"hackops/internal/tagurl"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("station failed", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	if err := tagurl.ValidateBase(cfg.TagBaseURL); err != nil {
		return fmt.Errorf("TAG_BASE_URL: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	health := map[string]station.HealthCheck{}
	usesRedis := cfg.CacheBackend == "redis" || cfg.QueueBackend == "redis"
	if usesRedis {
		health["redis"] = redisClient.Healthy
	}

	// Server URL: saved by operators, falling back to SERVER_URL.
	var settingsBackend settings.Backend = settings.NewMemory()
	if usesRedis {
		settingsBackend = settings.NewRedis(redisClient.Client)
	}
	serverURL := settings.New(settingsBackend, cfg.ServerURL)

	api := apiclient.New(serverURL, cfg.APIPrefix, tokenSource(cfg), cfg.HTTPTimeout).WithObserver(m.ObserveRemote)

	var cache directory.Cache = directory.NewMemoryCache()
	if cfg.CacheBackend == "redis" {
		cache = directory.NewRedisCache(redisClient.Client, "")
	}
	dir := directory.New(api, cache, cfg.CacheTTL, logger.Named("directory"))

	var auditLog station.AuditLog
	var publisher checkin.AuditSink
	if cfg.AuditEnabled {
		db, err := store.Open(ctx, cfg.AuditDriver, cfg.DatabaseURL, cfg.AuditSQLitePath)
		if err != nil {
			logger.Warn("audit database not reachable", zap.String("driver", cfg.AuditDriver), zap.Error(err))
		}
		var repo *audit.Repository
		if db != nil {
			defer db.Close()
			health["db"] = db.Healthy
			repo = audit.NewRepository(db.Client, db.Driver)
			if err == nil {
				if err := repo.Migrate(ctx); err != nil {
					logger.Warn("audit migration failed", zap.Error(err))
				}
			}
			auditLog = repo
		}

		publisher = auditSink(ctx, cfg, redisClient.Client, repo, logger)
	}

	dev, sim := openDevice(cfg, logger)
	transport := nfc.NewTransport(dev, logger.Named("nfc")).WithObserver(m.ObserveTag)
	if err := transport.Start(ctx); err != nil {
		logger.Warn("nfc reader not started, tag steps will retry on use", zap.Error(err))
	}
	defer transport.Close()

	methods := []identify.Method{identify.NewSearch(dir), identify.NewTag(transport, dir)}
	sessions := checkin.NewRegistry(func(ctx context.Context, id string) *checkin.Session {
		return checkin.New(ctx, id, checkin.Options{
			Transport:  transport,
			Attendance: api,
			Selector:   identify.NewSelector(methods...),
			Directory:  dir,
			Audit:      publisher,
			TagBaseURL: cfg.TagBaseURL,
			EventID:    cfg.EventID,
			Observe:    m.ObserveStep,
			Log:        logger.Named("checkin"),
		})
	})
	defer sessions.CloseAll()
	go sessions.Run(ctx, cfg.SessionIdleTTL, time.Minute, func(n int) {
		logger.Info("closed idle sessions", zap.Int("count", n))
		m.ActiveSessions.Set(float64(sessions.Len()))
	})

	srv := station.New(station.Deps{
		Log:          logger.Named("http"),
		Issuer:       auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		OperatorKey:  cfg.OperatorKey,
		Settings:     serverURL,
		Directory:    dir,
		Methods:      methods,
		Sessions:     sessions,
		Points:       points.NewService(api, dir, logger.Named("points")),
		Audit:        auditLog,
		Simulator:    sim,
		Metrics:      m,
		Limiter:      httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, httpmiddleware.OperatorOrIP),
		TokenLimiter: httpmiddleware.NewTokenBucket(cfg.TokenRateLimitPerMin, cfg.TokenRateLimitPerMin, httpmiddleware.ClientIP),
		Health:       health,
		CORSOrigins:  cfg.CORSOrigins,
	}).HTTPServer(":" + cfg.HTTPPort)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("station listening", zap.String("addr", srv.Addr), zap.String("nfc_driver", cfg.NFCDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	// Close sessions first so requests blocked on a tag return.
	sessions.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}
	return nil
}

// tokenSource prefers a static API token, then a locally minted one.
func tokenSource(cfg config.App) apiclient.TokenSource {
	if cfg.APIToken != "" {
		return auth.StaticToken(cfg.APIToken)
	}
	if cfg.APITokenSigningKey != "" {
		issuer := auth.NewIssuer(cfg.APITokenIssuer, cfg.APITokenSigningKey, cfg.APITokenTTL, cfg.APITokenTTL)
		return auth.NewSignedTokenSource(issuer, cfg.APITokenSubject, "organizer", cfg.APITokenTTL)
	}
	return auth.StaticToken("")
}

// openDevice picks the tag driver. The simulator is returned separately so
// the station can expose its controls.
func openDevice(cfg config.App, logger *zap.Logger) (nfc.Device, *nfc.Simulator) {
	switch cfg.NFCDriver {
	case "sim":
		sim := nfc.NewSimulator()
		return sim, sim
	case "none":
		return nfc.Unavailable{}, nil
	case "pcsc":
		return pcsc.New(cfg.NFCReader, cfg.NFCPollInterval, logger), nil
	}
	logger.Warn("unknown nfc driver, tag support disabled", zap.String("driver", cfg.NFCDriver))
	return nfc.Unavailable{}, nil
}

// auditSink picks where check-in audit records go. An in-memory queue is
// only used when this process can drain it into repo; otherwise auditing is
// off so nothing piles up.
func auditSink(ctx context.Context, cfg config.App, rdb *redis.Client, repo *audit.Repository, logger *zap.Logger) checkin.AuditSink {
	if cfg.QueueBackend != "memory" {
		q := queue.NewRedisQueue(rdb, queue.DefaultKey, logger.Named("queue"))
		return audit.NewPublisher(q, logger.Named("audit"))
	}
	if repo == nil {
		logger.Warn("audit disabled: in-memory queue has no database to drain into")
		return nil
	}
	q := queue.NewInMemory(64)
	logger.Warn("in-memory audit queue: records are stored only while this process runs")
	go func() {
		if err := audit.NewConsumer(q, repo, logger.Named("audit")).Run(ctx); err != nil {
			logger.Error("audit consumer stopped", zap.Error(err))
		}
	}()
	return audit.NewPublisher(q, logger.Named("audit"))
}
