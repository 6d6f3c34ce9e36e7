package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newAutomationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "automations",
		Short:   "Manage automation rules",
		Aliases: []string{"auto"},
	}

	cmd.AddCommand(
		newAutomationsListCmd(),
		newAutomationsRunCmd(),
		newAutomationsToggleCmd(),
		newAutomationsExecutionsCmd(),
	)
	return cmd
}

func newAutomationsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List the user's automation rules",
		Aliases: []string{"ls"},
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

			rules, err := c.Repos.Rules.ListByUser(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			if len(rules) == 0 {
				fmt.Println("No automation rules found.")
				return nil
			}

			for _, rule := range rules {
				state := "enabled"
				if !rule.Enabled {
					state = "disabled"
				}
				fmt.Printf("%s  %-8s  %s -> %s  %q\n",
					rule.ID, state, rule.TriggerType, rule.ActionType, rule.Name)
			}
			return nil
		},
	}
}

func newAutomationsRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Evaluate the user's enabled rules once",
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

			result, err := c.Evaluator.EvaluateAll(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("failed to evaluate rules: %w", err)
			}

			fmt.Printf("Evaluated %d rules: %d fired, %d failed\n",
				result.RulesEvaluated, result.Fired, result.Failed)
			return nil
		},
	}
}

func newAutomationsToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <rule-id> <on|off>",
		Short: "Enable or disable a rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid rule id %q: %w", args[0], err)
			}

			var enabled bool
			switch strings.ToLower(args[1]) {
			case "on", "true", "enable":
				enabled = true
			case "off", "false", "disable":
				enabled = false
			default:
				return fmt.Errorf("expected on or off, got %q", args[1])
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

			if err := c.Repos.Rules.SetEnabled(cmd.Context(), userID, ruleID, enabled); err != nil {
				return fmt.Errorf("failed to toggle rule: %w", err)
			}

			if enabled {
				fmt.Println("Rule enabled.")
			} else {
				fmt.Println("Rule disabled.")
			}
			return nil
		},
	}
}

func newAutomationsExecutionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "executions <rule-id>",
		Short: "Show a rule's recent executions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid rule id %q: %w", args[0], err)
			}

			c, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			executions, err := c.Repos.Executions.ListByRule(cmd.Context(), ruleID, limit)
			if err != nil {
				return fmt.Errorf("failed to list executions: %w", err)
			}

			if len(executions) == 0 {
				fmt.Println("No executions recorded.")
				return nil
			}

			for _, e := range executions {
				detail := strings.Join(e.ActionsPerformed, ", ")
				if e.ErrorMessage != "" {
					detail = e.ErrorMessage
				}
				fmt.Printf("%s  %-7s  %s\n",
					e.ExecutedAt.Format("2006-01-02 15:04:05"), e.Status, detail)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum executions to show")
	return cmd
}
