// Command c4-server runs the Search API over HTTP and WebSocket: a
// chi router behind a graceful http.Server, shut down on
// SIGINT/SIGTERM with a bounded drain.
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

	"github.com/WannesMalfait/Connect-4/internal/config"
	"github.com/WannesMalfait/Connect-4/internal/engine"
	"github.com/WannesMalfait/Connect-4/internal/httpapi"
)

func main() {
	addr := flag.String("addr", "", "listen address, overrides the default config")
	threads := flag.Int("threads", 0, "worker threads, 0 keeps the config default")
	ttSize := flag.Int("tt-size", 0, "transposition table capacity, 0 keeps the config default")
	bookPath := flag.String("book", "", "opening book file to load at startup")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *threads > 0 {
		cfg.Threads = *threads
	}
	if *ttSize > 0 {
		cfg.TTSize = *ttSize
	}
	store := config.NewStore()
	store.Update(cfg)

	coordinator := engine.New(store)
	if *bookPath != "" {
		if err := coordinator.LoadBook(*bookPath); err != nil {
			log.Fatalf("[c4-server] loading book %s: %v", *bookPath, err)
		}
		log.Printf("[c4-server] loaded opening book %s", *bookPath)
	}

	server := httpapi.New(coordinator)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	log.Printf("[c4-server] listening on %s", cfg.HTTPAddr)
	var runErr error
	select {
	case <-sigCtx.Done():
		log.Printf("[c4-server] shutdown signal received: %v", sigCtx.Err())
	case err, ok := <-serverErrCh:
		if ok {
			runErr = err
			log.Printf("[c4-server] server error: %v", err)
		}
	}

	coordinator.Cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("[c4-server] graceful shutdown failed: %v", err)
		if closeErr := httpServer.Close(); closeErr != nil && !errors.Is(closeErr, http.ErrServerClosed) {
			log.Printf("[c4-server] forced close failed: %v", closeErr)
		}
	}
	if runErr != nil {
		log.Printf("[c4-server] exiting after server error: %v", runErr)
		os.Exit(1)
	}
}
