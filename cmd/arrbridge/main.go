// Command arrbridge runs the media-request broker's HTTP server: it wires
// the SQLite-backed store, the TMDB/TVDB clients, the Web Push notifier,
// and the reconciliation engine into the HTTP surface, matching the
// teacher's cmd/streammon/main.go wiring-and-graceful-shutdown shape.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arrbridge/internal/auth"
	"arrbridge/internal/config"
	"arrbridge/internal/notifier"
	"arrbridge/internal/reconcile"
	"arrbridge/internal/server"
	"arrbridge/internal/storage"
	"arrbridge/internal/store"
	"arrbridge/internal/tmdb"
	"arrbridge/internal/tvdb"
)

const reapInterval = 10 * time.Minute

func main() {
	cfg := config.Load()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	st := store.New(db)
	defer st.Close()

	tmdbClient := tmdb.New(cfg.TMDBAPIKey)
	tvdbClient := tvdb.New(cfg.TVDBAPIKey)

	var n *notifier.Notifier
	if cfg.VAPIDPrivateKey != "" && cfg.VAPIDPublicKey != "" {
		n, err = notifier.New(st, cfg.VAPIDPrivateKey, cfg.VAPIDPublicKey, cfg.VAPIDSubject)
		if err != nil {
			log.Fatalf("initializing push notifier: %v", err)
		}
	} else {
		log.Println("VAPID keys not set — push notifications disabled")
	}

	engine := reconcile.New(st, tvdbClient, n)
	engine.ServerName = cfg.PlexServerName

	rateLimitCfg := auth.RateLimitConfig{
		Enabled:     cfg.RateLimitEnabled,
		MaxAttempts: cfg.RateLimitMaxAttempts,
		Window:      cfg.RateLimitWindow,
	}
	limiter := auth.NewLimiter(st, rateLimitCfg)

	srv := server.New(st, tmdbClient, engine, n, limiter, cfg)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runReaper(ctx, db)

	go func() {
		log.Printf("arrbridge listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// runReaper periodically reclaims expired rows (rate-limit buckets, the
// only items written with a ttl) — read-time TTL filtering already hides
// them, this just bounds table growth.
func runReaper(ctx context.Context, db storage.Store) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := storage.ReapExpired(db)
			if err != nil {
				log.Printf("reaper: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("reaper: removed %d expired items", n)
			}
		}
	}
}
