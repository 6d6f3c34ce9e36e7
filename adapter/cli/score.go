package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Recalculate lead scores",
	}

	cmd.AddCommand(newScoreContactCmd(), newScoreBatchCmd())
	return cmd
}

func newScoreContactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contact <contact-id>",
		Short: "Recalculate one contact's lead score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contactID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid contact id %q: %w", args[0], err)
			}
			userID, err := resolveUserID(cmd)
			if err != nil {
				return err
			}

			c, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Aggregator.ScoreContact(cmd.Context(), userID, contactID)
			if err != nil {
				return fmt.Errorf("failed to score contact: %w", err)
			}

			fmt.Printf("Contact %s\n", result.ContactID)
			fmt.Printf("Score: %d/100", result.Score)
			if result.Hot {
				fmt.Print("  (hot lead)")
			}
			fmt.Println()
			fmt.Println()
			fmt.Println(result.Explanation)
			return nil
		},
	}
}

func newScoreBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Recalculate lead scores for all of the user's contacts",
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

			results, err := c.Aggregator.ScoreAllContacts(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("failed to score contacts: %w", err)
			}

			if len(results) == 0 {
				fmt.Println("No contacts found.")
				return nil
			}

			hot := 0
			for _, result := range results {
				marker := " "
				if result.Hot {
					marker = "*"
					hot++
				}
				fmt.Printf("%s %3d  %s\n", marker, result.Score, result.ContactID)
			}
			fmt.Printf("\n%d contacts scored, %d hot\n", len(results), hot)
			return nil
		},
	}
}
