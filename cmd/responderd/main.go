package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lewisedginton/afk_responder/internal/config"
	"github.com/lewisedginton/afk_responder/internal/server"
	"github.com/lewisedginton/afk_responder/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to the optional YAML config file")
	flag.Parse()

	cfg, err := config.GetAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(logger.Config{
		Level:   cfg.GetLogLevel(),
		Format:  cfg.Logging.Format,
		Service: cfg.ServiceName,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to build server", logger.ErrorField(err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		log.Error("Shutdown finished with error", logger.ErrorField(err))
		os.Exit(1)
	}
}
