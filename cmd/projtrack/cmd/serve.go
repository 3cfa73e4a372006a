package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/projtrack/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local JSON API server",
	Long: `Start the HTTP API on localhost. Set server.api_key in the config
to require an X-API-Key header on /api/v1 routes.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		srv := api.NewServer(cfg, st, logger)
		return srv.Start(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
