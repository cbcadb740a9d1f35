package main

import (
	"github.com/spf13/cobra"

	"github.com/stackhead/task-management-app/storage"
)

func initStorageCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init-storage",
		Short: "Create the tables and the cleanup queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}
			ctx := cmd.Context()
			names := make([]string, 0, len(cfg.Tables()))
			for _, name := range cfg.Tables() {
				names = append(names, name)
			}
			if err := storage.CreateTables(ctx, cfg.StorageConnectionString, names); err != nil {
				return err
			}
			if err := storage.CreateQueues(ctx, cfg.StorageConnectionString, []string{cfg.CleanupQueue}); err != nil {
				return err
			}
			logger.WithField("tables", names).Info("storage initialized")
			return nil
		},
	}
}
