package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"biblioteca.org/internal/account"
	"biblioteca.org/internal/config"
	"biblioteca.org/internal/httpapi"
	"biblioteca.org/internal/obs"
	"biblioteca.org/internal/store/memory"
	"biblioteca.org/internal/store/pg"
)

var version = "1.0.0"

func main() {
	obs.Init()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.AuthSecret == "" {
		log.Fatal("BIBLIO_AUTH_SECRET is required")
	}

	// Postgres when a DSN is configured, in-memory otherwise. The memory
	// store is for development; it forgets everything on restart.
	var (
		store account.Store
		probe httpapi.ReadyProbe
	)
	if cfg.PgDSN != "" {
		pgStore, err := pg.Open(cfg.PgDSN,
			pg.WithMaxOpenConns(cfg.DBMaxOpenConns),
			pg.WithMaxIdleConns(cfg.DBMaxIdleConns),
			pg.WithConnMaxLifetime(cfg.DBConnMaxLifetime),
		)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		obs.Warn("no BIBLIO_PG_DSN set, using in-memory store", nil)
		store = memory.New()
	}

	svc, err := account.NewService(store,
		account.WithTokenSecret(cfg.AuthSecret),
		account.WithTokenTTL(cfg.TokenTTL),
	)
	if err != nil {
		log.Fatalf("service: %v", err)
	}

	api := httpapi.New(svc, probe, version, httpapi.Options{
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	log.Printf("Starting biblioteca-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
