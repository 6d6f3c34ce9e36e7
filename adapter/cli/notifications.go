package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNotificationsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show recent notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUserID(cmd)
			if err != nil {
				return err
			}

			c, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			items, err := c.Repos.Notifications.ListByUser(cmd.Context(), userID, limit)
			if err != nil {
				return fmt.Errorf("failed to list notifications: %w", err)
			}

			if len(items) == 0 {
				fmt.Println("No notifications.")
				return nil
			}

			for _, n := range items {
				fmt.Printf("%s  %s", n.CreatedAt.Format("2006-01-02 15:04"), n.Title)
				if n.Message != "" {
					fmt.Printf(": %s", n.Message)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum notifications to show")
	return cmd
}
