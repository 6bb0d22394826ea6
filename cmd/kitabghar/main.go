package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"kitabghar/internal/app"
	"kitabghar/internal/config"
	"kitabghar/internal/ratelimit"
	"kitabghar/internal/server"
	"kitabghar/internal/storage"
	"kitabghar/internal/store"
	"kitabghar/internal/util"
)

func main() {
	cfg, err := config.Load(os.Getenv("KITABGHAR_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.InitLogger(cfg.LogLevel)

	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session ttl: %v", err)
	}

	catalog, err := newCatalogStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	sessions, err := newSessionStore(cfg, sessionTTL)
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}
	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("failed to init blob store: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:             catalog,
		Sessions:          sessions,
		Blobs:             blobs,
		AllowedExtensions: cfg.AllowedExtensions,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	if err := appCore.SeedDefaults(); err != nil {
		log.Fatalf("failed to seed default accounts: %v", err)
	}

	loginLimiter, err := newLimiter(cfg, "login", cfg.LoginRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init login rate limiter: %v", err)
	}
	registerLimiter, err := newLimiter(cfg, "register", cfg.RegisterRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init register rate limiter: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:             appCore,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		LoginLimiter:    loginLimiter,
		RegisterLimiter: registerLimiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // large file transfers
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("kitabghar listening", "addr", addr, "storage", cfg.StorageBackend, "sessions", cfg.SessionStrategy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func newCatalogStore(cfg config.FileConfig) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		return store.NewGormStore(cfg.DatabaseURL)
	}
	return store.NewMemoryStore(cfg.SnapshotPath), nil
}

func newSessionStore(cfg config.FileConfig, ttl time.Duration) (store.SessionStore, error) {
	switch cfg.SessionStrategy {
	case "redis":
		return store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, ttl), nil
	case "jwt":
		return store.NewJWTSessionStore(cfg.SessionSecret, ttl)
	default:
		return store.NewMemorySessionStore(), nil
	}
}

func newBlobStore(cfg config.FileConfig) (storage.BlobStore, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewObjectStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	}
	return storage.NewFileStore(cfg.UploadDir)
}

func newLimiter(cfg config.FileConfig, name string, perMinute int) (*ratelimit.FixedWindowLimiter, error) {
	if perMinute <= 0 {
		return nil, nil
	}
	return ratelimit.NewRedisFixedWindowLimiter(
		cfg.RedisAddr, cfg.RedisPassword,
		"kitabghar:ratelimit:"+name,
		perMinute, time.Minute,
	)
}
