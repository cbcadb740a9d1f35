package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackhead/task-management-app/api"
)

// genTokenCmd signs a session token accepted by the server in local auth
// mode. It is meant for local runs and smoke tests.
func genTokenCmd(configPath *string) *cobra.Command {
	var (
		userID    string
		sessionID string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "gen-token",
		Short: "Sign a local-mode session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.LocalAuthSharedSecret == "" {
				return errors.New("missing LOCAL_AUTH_SHARED_SECRET")
			}
			token, err := api.SignLocalToken([]byte(cfg.LocalAuthSharedSecret), api.LocalToken{
				UserID:    userID,
				SessionID: sessionID,
				Audience:  cfg.AuthAudience,
				Issuer:    cfg.AuthIssuer,
				TTL:       ttl,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id placed in the sub claim")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id placed in the sid claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
