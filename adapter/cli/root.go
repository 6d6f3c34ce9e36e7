// Package cli implements the funnel command line interface. Commands are
// thin: they build the application container, call one service, and print.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/funnelworks/funnel/internal/app"
	"github.com/funnelworks/funnel/pkg/config"
	"github.com/funnelworks/funnel/pkg/observability"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the funnel root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "funnel",
		Short: "Lead scoring and engagement pipeline for your CRM",
		Long: `Funnel scores leads from CRM activity, walks contacts through
email sequences, and fires automation rules on CRM state.

Runs fully local on SQLite when DATABASE_URL is unset.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("user", "", "user id (defaults to FUNNEL_USER_ID)")

	root.AddCommand(
		newScoreCmd(),
		newSequencesCmd(),
		newAutomationsCmd(),
		newNotificationsCmd(),
		newWorkerCmd(),
	)

	return root
}

func buildContainer(cmd *cobra.Command) (*app.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.New(cmd.Context(), cfg, observability.LoggerFromEnv())
}

func resolveUserID(cmd *cobra.Command) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString("user")
	if raw == "" {
		raw = os.Getenv("FUNNEL_USER_ID")
	}
	if raw == "" {
		return uuid.Nil, errors.New("user id required: pass --user or set FUNNEL_USER_ID")
	}

	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", raw, err)
	}
	return userID, nil
}
