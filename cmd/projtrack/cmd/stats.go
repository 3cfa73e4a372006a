package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Show database statistics",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		stats, err := st.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", cfg.DatabasePath())
		fmt.Printf("Projects:       %d\n", stats.ProjectCount)
		fmt.Printf("Contacts:       %d\n", stats.ContactCount)
		fmt.Printf("Communications: %d\n", stats.CommunicationCount)
		fmt.Printf("Project links:  %d\n", stats.LinkCount)
		fmt.Printf("Memberships:    %d\n", stats.MembershipCount)
		fmt.Printf("Legacy emails:  %d\n", stats.LegacyEmailCount)
		fmt.Printf("Size on disk:   %.1f MB\n", float64(stats.DatabaseSize)/(1024*1024))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
