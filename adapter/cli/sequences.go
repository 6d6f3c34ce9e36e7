package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSequencesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sequences",
		Short:   "Manage sequence enrollments",
		Aliases: []string{"seq"},
	}

	cmd.AddCommand(
		newSequencesEnrollCmd(),
		newSequencesListCmd(),
		newSequencesProcessCmd(),
		newSequencesPauseCmd(),
		newSequencesResumeCmd(),
	)
	return cmd
}

func newSequencesEnrollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <sequence-id> <contact-id>",
		Short: "Enroll a contact into a sequence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sequenceID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid sequence id %q: %w", args[0], err)
			}
			contactID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid contact id %q: %w", args[1], err)
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

			enrollment, err := c.Stepper.Enroll(cmd.Context(), userID, sequenceID, contactID)
			if err != nil {
				return fmt.Errorf("failed to enroll contact: %w", err)
			}

			fmt.Printf("Enrolled. Enrollment %s, first step due %s\n",
				enrollment.ID(), enrollment.NextSendAt().Format("2006-01-02 15:04"))
			return nil
		},
	}
}

func newSequencesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List the user's enrollments",
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

			enrollments, err := c.Repos.Enrollments.ListByUser(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("failed to list enrollments: %w", err)
			}

			if len(enrollments) == 0 {
				fmt.Println("No enrollments found.")
				return nil
			}

			for _, e := range enrollments {
				fmt.Printf("%s  %-9s  step %d  next %s  contact %s\n",
					e.ID(), e.Status(), e.CurrentStep(),
					e.NextSendAt().Format("2006-01-02 15:04"), e.ContactID())
			}
			return nil
		},
	}
}

func newSequencesProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Run one dispatch pass over due enrollments",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildContainer(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Stepper.ProcessDue(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to process enrollments: %w", err)
			}

			fmt.Printf("Claimed %d, sent %d, completed %d, failed %d\n",
				result.Claimed, result.Sent, result.Completed, result.Failed)
			return nil
		},
	}
}

func newSequencesPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <enrollment-id>",
		Short: "Pause an active enrollment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnrollmentPaused(cmd, args[0], true)
		},
	}
}

func newSequencesResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <enrollment-id>",
		Short: "Resume a paused enrollment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEnrollmentPaused(cmd, args[0], false)
		},
	}
}

func setEnrollmentPaused(cmd *cobra.Command, rawID string, paused bool) error {
	enrollmentID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid enrollment id %q: %w", rawID, err)
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

	if paused {
		if err := c.Stepper.Pause(cmd.Context(), userID, enrollmentID); err != nil {
			return fmt.Errorf("failed to pause enrollment: %w", err)
		}
		fmt.Println("Enrollment paused.")
		return nil
	}

	if err := c.Stepper.Resume(cmd.Context(), userID, enrollmentID); err != nil {
		return fmt.Errorf("failed to resume enrollment: %w", err)
	}
	fmt.Println("Enrollment resumed.")
	return nil
}
