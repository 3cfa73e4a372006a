package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesm/projtrack/internal/importer"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-directory>",
	Short: "Ingest .eml files into the ledger",
	Long: `Ingest one .eml file, or every .eml file in a directory.

Raw messages are copied into the raw_mail directory under the projtrack
home; re-ingesting the same message refreshes it without disturbing any
triage decision already made. Mail from ignored senders is recorded with
status 'ignored' and never enters triage.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		ing := importer.NewIngestor(st, cfg.RawMailDir(), logger)

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			count, _, err := ing.IngestDir(path)
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %d message(s) from %s\n", count, path)
			if count > 0 {
				fmt.Println("Run 'projtrack triage' to sort them into projects.")
			}
			return nil
		}

		res, err := ing.IngestFile(path)
		if err != nil {
			return err
		}
		subject := res.Communication.Subject.String
		if subject == "" {
			subject = "(no subject)"
		}
		fmt.Printf("Ingested [%d] %s (status %s)\n", res.Communication.ID, subject, res.Communication.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
