package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/events"
	"github.com/parleychat/parley/internal/flight"
	"github.com/parleychat/parley/internal/generation"
	"github.com/parleychat/parley/internal/handler"
	"github.com/parleychat/parley/internal/manager"
	"github.com/parleychat/parley/internal/session"
	"github.com/parleychat/parley/internal/speech"
	"github.com/parleychat/parley/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	var st store.Store
	sqliteStore, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		log.Printf("warning: failed to open session store at %s: %v", cfg.Store.Path, err)
		log.Println("continuing with an in-memory store; sessions will not survive restarts")
		st = store.NewMemory()
	} else {
		defer sqliteStore.Close()
		st = sqliteStore
	}

	repo, err := session.NewRepository(ctx, st)
	if err != nil {
		log.Fatalf("failed to initialize session repository: %v", err)
	}

	var gen generation.Generator
	if cfg.Generation.Enabled() {
		genService, err := generation.NewService(ctx, cfg.Generation)
		if err != nil {
			log.Printf("warning: failed to initialize generation service: %v", err)
			gen = generation.Disabled{}
		} else {
			log.Println("generation service initialized successfully")
			gen = genService
		}
	} else {
		log.Println("generation credentials not configured; sends will fail until they are provided")
		gen = generation.Disabled{}
	}

	hub := events.NewHub()
	mgr := manager.New(repo, flight.NewController(), gen, speech.NewEventSpeaker(hub), hub, cfg.Generation.Temperature)

	router := handler.NewRouter(mgr, hub)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Parley backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
