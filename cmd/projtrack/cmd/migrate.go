package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/projtrack/internal/migrate"
)

var migrateDryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Backfill the relational model from the legacy flat email table",
	Long: `Read every row of the legacy emails table and materialize it as
contacts, communications, and project links. Rerunning is safe: rows
already represented are skipped. With --dry-run the full migration is
executed and reported but nothing is committed.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		report, err := migrate.NewRunner(st).Run(cmd.Context(), migrateDryRun)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		printReport(report)
		return nil
	},
}

func printReport(r *migrate.Report) {
	if r.DryRun {
		fmt.Println("Dry run: no changes were committed.")
	}
	fmt.Printf("Processed:              %d\n", r.Processed)
	fmt.Printf("Skipped (existing):     %d\n", r.Skipped)
	fmt.Printf("Contacts created:       %d\n", r.ContactsCreated)
	fmt.Printf("Communications created: %d\n", r.CommunicationsCreated)
	fmt.Printf("Links created:          %d\n", r.LinksCreated)
	fmt.Printf("Senders ignored:        %d\n", r.SendersIgnored)
	if len(r.Errors) > 0 {
		fmt.Printf("Errors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Printf("  %s: %s\n", e.MessageID, e.Reason)
		}
	}
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "report what would change without committing")
	rootCmd.AddCommand(migrateCmd)
}
