package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/disease-risk-api/internal/admin"
	"github.com/disease-risk-api/internal/config"
	"github.com/disease-risk-api/internal/domain"
	"github.com/disease-risk-api/internal/logging"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cfg := configManager.GetConfig()

	if len(os.Args) > 1 && os.Args[1] == "admin" {
		runAdmin(configManager, cfg.Logging, os.Args[2:])
		return
	}

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer app.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
		"diseases":    len(cfg.Models.Diseases),
	}).Info("Starting disease risk API")

	if err := app.server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		app.Close()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

// runAdmin executes an admin subcommand. Logs go to stderr so that command
// output on stdout can be redirected.
func runAdmin(configManager domain.ConfigManager, logCfg domain.LoggingConfig, args []string) {
	logCfg.Output = "stderr"
	logger, err := logging.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	cli := admin.NewCLI(configManager, logger, os.Stdout)
	if err := cli.Run(context.Background(), args); err != nil {
		log.Fatalf("Admin command failed: %v", err)
	}
}
