package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/libraryledger/ledger-server/internal/di"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return di.Run(ctx, di.NewContainer(cfg))
	},
}
