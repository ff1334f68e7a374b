package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/igorcardos0/aquiplanos-tracking/internal/collector"
	"github.com/igorcardos0/aquiplanos-tracking/internal/config"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/clock"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  This is a STUB collector for local testing.               ║")
	log.Println("║  Events are validated and counted, never persisted.        ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("load config: %v", err)
		}
		cfg = config.Default()
	}
	if cfg.Debug {
		logger.SetLevel(logger.DEBUG)
	}
	if cfg.API.APIKey == "" {
		log.Fatal("collector: TRACKING_API_KEY is required")
	}

	srv := collector.NewServer(cfg.Server, cfg.API.APIKey, clock.Real{})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("collector listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down collector...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}
