package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/libraryledger/ledger-server/cmd/ledgerctl/output"
	"github.com/libraryledger/ledger-server/internal/catalog"
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Catalog tools",
}

var booksImportCmd = &cobra.Command{
	Use:   "import <manifest.json>",
	Short: "Import books from a manifest",
	Long: `Creates or updates books listed in a JSON manifest. Books are matched by
ISBN; entries that fail validation are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		m, err := catalog.ParseManifestFile(args[0])
		if err != nil {
			return err
		}

		e, err := openEnv(ctx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		report, err := catalog.Import(ctx, e.catalogService(), m)
		if err != nil {
			return err
		}

		if jsonOutput {
			return output.JSON(report)
		}
		output.Success("Imported %s: %d created, %d updated, %d skipped",
			args[0], report.Created, report.Updated, report.Skipped)
		if len(report.Failed) > 0 {
			output.Section("Failed entries")
			rows := make([][]string, 0, len(report.Failed))
			for _, f := range report.Failed {
				rows = append(rows, []string{strconv.Itoa(f.Index), f.Title, f.Error})
			}
			output.Table([]string{"#", "TITLE", "ERROR"}, rows)
		}
		return nil
	},
}

func init() {
	booksCmd.AddCommand(booksImportCmd)
}
