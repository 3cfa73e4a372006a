package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var remindersCmd = &cobra.Command{
	Use:   "check-reminders",
	Short: "Surface snoozed communications whose reminder time has passed",
	Long: `Find every snoozed communication whose reminder time is due and
move it back to unassigned so the next triage pass picks it up.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		due, err := st.DueReminders(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("check reminders: %w", err)
		}
		if len(due) == 0 {
			fmt.Println("No reminders due.")
			return nil
		}

		fmt.Printf("%d communication(s) back in the queue:\n", len(due))
		for _, comm := range due {
			subject := comm.Subject.String
			if subject == "" {
				subject = "(no subject)"
			}
			fmt.Printf("  [%d] %s  %s\n", comm.ID, comm.Timestamp.String, subject)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(remindersCmd)
}
