package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"QuantPipe/internal/di"
	"QuantPipe/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s paper_trading=%t kafka=%t redis=%t", cfg.Environment,
		cfg.Stages.Execution.Simulate, cfg.Kafka.Enabled, cfg.Redis.Enabled)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run application (blocks until signal)
	if err := app.Run(ctx); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
