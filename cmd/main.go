package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"debtster-kpi/internal/clients"
	"debtster-kpi/internal/config"
	"debtster-kpi/internal/report"
	"debtster-kpi/internal/repository"
	"debtster-kpi/internal/service"
	"debtster-kpi/internal/transport/auth"
	"debtster-kpi/internal/transport/rest"
	"debtster-kpi/internal/transport/websocket"
	"debtster-kpi/pkg/database/postgres"
	"debtster-kpi/pkg/logger"
	"debtster-kpi/pkg/metrics"

	"github.com/sirupsen/logrus"
)

const (
	fileRetention   = 30 * time.Minute
	cleanupInterval = 5 * time.Minute
)

func main() {
	log := logger.Get()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	logger.Configure(cfg.LogLevel)

	// top-level context, cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := mustInitPostgres(ctx, cfg.Postgres, log)
	defer postgres.Close(db)

	kv, closeKV := mustInitKV(ctx, cfg.Redis, log)
	defer closeKV()

	local, storage := mustInitStorage(cfg, log)

	mx := metrics.NewManager()

	wsHub := websocket.NewHub(logger.Module("websocket"), cfg.CORSOrigins...)
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	recordRepo := repository.NewRecordRepository(db)
	tokenRepo := repository.NewPersonalAccessTokenRepository(db, logger.Module("auth"))

	builder := report.NewBuilder(mx, cfg.BuildConcurrency)
	sessionSvc := service.NewSessionService(kv, recordRepo, mx, service.SessionOptions{
		TTL:      cfg.SessionTTL,
		Location: cfg.Location(),
	}, logger.Module("session"))
	dashboardSvc := service.NewDashboardService(sessionSvc, builder)
	reportSvc := service.NewReportExportService(sessionSvc, builder, kv, storage, wsClient, mx, logger.Module("report_export"))
	exportSvc := service.NewExportService(kv)

	deps := rest.Deps{
		Sessions:   sessionSvc,
		Dashboard:  dashboardSvc,
		Reports:    reportSvc,
		ExportList: exportSvc,
		WebSocket:  wsHub,
		Metrics:    mx.Handler(),
		Health: map[string]rest.Pinger{
			"postgres": rest.PingFunc(func(ctx context.Context) error { return postgres.Ping(ctx, db) }),
			"kv":       kv,
		},
		UploadLimit: cfg.UploadLimit(),
		Location:    cfg.Location(),
		Log:         logger.Module("http"),
	}
	if local != nil {
		deps.Files = local
	}
	handler := rest.NewHandler(deps)
	router := handler.InitRouterWithAuth(auth.SanctumMiddleware(tokenRepo, logger.Module("auth")))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withCORS(router, cfg.CORSOrigins),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	if local != nil {
		go runCleanup(ctx, local, log)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			log.WithError(err).Fatal("HTTP server error")
		}
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("HTTP server shutdown error")
		}

		// let running exports finish writing their status
		reportSvc.Wait()
		cancel()

		log.Info("shutdown complete")
	}
}

func mustInitPostgres(ctx context.Context, cfg config.PostgresConfig, log *logrus.Logger) *sql.DB {
	db, err := postgres.NewPostgresConnection(ctx, postgres.ConnectionInfo{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.User,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
		Password: cfg.Password,
	})
	if err != nil {
		log.WithError(err).Fatal("postgres init error")
	}
	return db
}

type healthKV interface {
	service.KV
	rest.Pinger
}

// mustInitKV returns Redis when enabled and the in-process store otherwise.
func mustInitKV(ctx context.Context, cfg config.RedisConfig, log *logrus.Logger) (healthKV, func()) {
	if !cfg.Enabled {
		kv := clients.NewMemoryKV()
		go kv.RunJanitor(ctx, time.Minute)
		log.Info("redis disabled, using in-memory store")
		return kv, func() {}
	}

	client, err := clients.NewRedisClient(ctx, clients.RedisConfig{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
		Timeout:     cfg.Timeout,
		Prefix:      cfg.Prefix,
	})
	if err != nil {
		log.WithError(err).Fatal("redis init error")
	}
	return client, client.Close
}

func mustInitStorage(cfg config.AppConfig, log *logrus.Logger) (*clients.LocalStorage, service.ReportStorage) {
	if cfg.Storage.Driver == config.StorageS3 {
		s3, err := clients.NewS3Client(clients.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			UseSSL:          cfg.S3.UseSSL,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			URLTTL:          cfg.S3.URLTTL,
		})
		if err != nil {
			log.WithError(err).Fatal("s3 init error")
		}
		return nil, s3
	}

	local, err := clients.NewLocalStorage(cfg.Storage.ExportDir, cfg.Storage.PublicPrefix, cfg.Storage.ExternalURL)
	if err != nil {
		log.WithError(err).Fatal("storage init error")
	}
	return local, local
}

func runCleanup(ctx context.Context, local *clients.LocalStorage, log *logrus.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := local.CleanupOlderThan(fileRetention)
			if err != nil {
				log.WithError(err).Warn("storage cleanup error")
				continue
			}
			if n > 0 {
				log.WithField("removed", n).Debug("old report files removed")
			}
		}
	}
}

func withCORS(next http.Handler, allowed []string) http.Handler {
	allowAll := len(allowed) == 0
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || containsOrigin(allowed, origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func containsOrigin(allowed []string, origin string) bool {
	for _, o := range allowed {
		if strings.EqualFold(strings.TrimRight(o, "/"), origin) {
			return true
		}
	}
	return false
}
