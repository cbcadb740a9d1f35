package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stackhead/task-management-app/config"
)

var Version = "dev"

func main() {
	var configPath string
	rootCmd := &cobra.Command{
		Use:     "board",
		Short:   "Kanban board API, storage bootstrap and cleanup janitor",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML file layered under the environment")

	serve := serveCmd(&configPath)
	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(initStorageCmd(&configPath))
	rootCmd.AddCommand(janitorCmd(&configPath))
	rootCmd.AddCommand(genTokenCmd(&configPath))
	rootCmd.RunE = serve.RunE

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and prepares the logger the way every
// command needs it.
func loadConfig(path string) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}
	return cfg, logger, nil
}
