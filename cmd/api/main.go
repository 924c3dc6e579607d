package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"authcore.org/internal/auth"
	"authcore.org/internal/config"
	"authcore.org/internal/directory"
	dirpg "authcore.org/internal/directory/pg"
	"authcore.org/internal/httpapi"
	"authcore.org/internal/obs"
	"authcore.org/internal/revocation"
	"authcore.org/internal/token"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Token revocation lives in Redis so every instance sees a logout
	// immediately; the in-process store is a single-node fallback.
	var revoked revocation.Store
	if cfg.RedisURL != "" {
		revoked, err = revocation.OpenRedis(cfg.RedisURL, "")
		if err != nil {
			log.Fatalf("open redis: %v", err)
		}
	} else {
		log.Println("AUTHCORE_REDIS_URL not set, revocations are process-local")
		revoked = revocation.NewMemoryStore()
	}

	var dirStore directory.Store
	if db != nil {
		dirStore = dirpg.New(db)
	} else {
		log.Println("AUTHCORE_PG_DSN not set, directory and identities are in-memory")
		dirStore = directory.NewMemoryStore()
	}
	dir, err := directory.NewService(dirStore)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	if err := dir.EnsureBuiltins(startCtx); err != nil {
		log.Fatalf("ensure builtin permissions: %v", err)
	}
	cancelStart()

	var identities auth.IdentityStore
	if db != nil {
		identities = auth.NewPGIdentityStore(db)
	} else {
		identities = auth.NewMemoryIdentityStore()
	}

	codec, err := token.NewCodec(cfg.TokenSecret, token.WithIssuer(cfg.Issuer))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	resolver, err := auth.NewResolver(dir)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	authSvc, err := auth.NewService(
		identities,
		auth.BcryptHasher{Cost: cfg.BcryptCost},
		resolver,
		codec,
		revoked,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(authSvc, dir, httpapi.ReadyProbe{DB: db}, version)

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, cfg.MaxBodyBytes)
	handler = httpapi.RateLimit(handler, cfg.RateLimitRPS, cfg.RateLimitBurst)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authcore-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = revoked.Close()
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
