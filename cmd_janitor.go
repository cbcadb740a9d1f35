package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/janitor"
	"github.com/stackhead/task-management-app/storage"
)

func janitorCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "janitor",
		Short: "Drain the cleanup queue left behind by failed column deletes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}
			q, err := storage.NewQueue(cfg.StorageConnectionString, cfg.CleanupQueue, 0)
			if err != nil {
				return fmt.Errorf("cleanup queue: %w", err)
			}
			tables, err := storage.NewTables(cfg.StorageConnectionString, cfg.Tables())
			if err != nil {
				return fmt.Errorf("storage: %w", err)
			}
			var docs baas.Documents = tables
			if cfg.RedisConnectionString != "" && cfg.DocumentCacheTTL > 0 {
				rc, err := newRedis(cfg)
				if err != nil {
					return err
				}
				defer rc.Close()
				// Deletes must evict the lists the API has cached.
				docs = storage.NewCache(tables, rc, cfg.DocumentCacheTTL)
			}

			logger.WithFields(log.Fields{"queue": cfg.CleanupQueue, "workers": cfg.JanitorWorkers}).Info("janitor started")
			return janitor.New(q, docs, janitor.Config{Workers: cfg.JanitorWorkers}, logger).Run(cmd.Context())
		},
	}
}
