package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/libraryledger/ledger-server/cmd/ledgerctl/output"
	"github.com/libraryledger/ledger-server/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the sample library",
	Long: `Loads seven classic titles, three students (password "password123"),
a librarian ("librarian" / "password123") and an admin ("admin" / "adminpass"),
plus loans that are outstanding, overdue and returned late.

Records that already exist are left untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		report, err := seed.Load(ctx, e.store, time.Now().UTC(), e.log.Logger)
		if err != nil {
			return err
		}
		if e.index != nil {
			if _, err := e.catalogService().Reindex(ctx, e.index.Rebuild); err != nil {
				return err
			}
		}

		if jsonOutput {
			return output.JSON(report)
		}
		if report == (seed.Report{}) {
			output.Info("Sample data already present")
			return nil
		}
		output.Success("Loaded %d books, %d students, %d staff and %d loans",
			report.Books, report.Students, report.Staff, report.Loans)
		return nil
	},
}
