package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/projtrack/internal/store"
)

var communicationsStatus []string

var communicationsCmd = &cobra.Command{
	Use:   "communications",
	Short: "List tracked communications",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, st := range communicationsStatus {
			switch st {
			case store.StatusUnassigned, store.StatusAssigned, store.StatusSnoozed, store.StatusIgnored:
			default:
				return fmt.Errorf("unknown status %q", st)
			}
		}

		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		comms, err := st.ListCommunications(communicationsStatus...)
		if err != nil {
			return fmt.Errorf("list communications: %w", err)
		}
		if len(comms) == 0 {
			fmt.Println("No communications tracked with the selected filters.")
			return nil
		}
		for _, c := range comms {
			subject := c.Subject.String
			if subject == "" {
				subject = "(no subject)"
			}
			fmt.Printf("[%d] %s  %s  status=%s  %s\n", c.ID, c.Timestamp.String, c.Type, c.Status, subject)
		}
		return nil
	},
}

func init() {
	communicationsCmd.Flags().StringArrayVar(&communicationsStatus, "status", nil,
		"filter by status (unassigned, assigned, snoozed, ignored); repeatable")
	rootCmd.AddCommand(communicationsCmd)
}
