package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/libraryledger/ledger-server/cmd/ledgerctl/output"
	"github.com/libraryledger/ledger-server/internal/service"
)

const dateLayout = "2006-01-02"

var (
	fineIssued   string
	fineReturned string
	fineTitle    string
)

var fineCmd = &cobra.Command{
	Use:   "fine",
	Short: "Fine tools",
}

var fineCalcCmd = &cobra.Command{
	Use:     "calc",
	Short:   "Compute the fine for hypothetical dates",
	Example: "  ledgerctl fine calc --issued 2024-01-01 --returned 2024-01-20",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		issued, err := time.Parse(dateLayout, fineIssued)
		if err != nil {
			return fmt.Errorf("--issued: %w", err)
		}
		returned, err := time.Parse(dateLayout, fineReturned)
		if err != nil {
			return fmt.Errorf("--returned: %w", err)
		}

		calc, err := service.CalculateFine(service.FineCalcRequest{
			BookTitle:  fineTitle,
			IssueDate:  issued,
			ReturnDate: returned,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return output.JSON(calc)
		}
		pairs := [][2]string{
			{"Issued", calc.IssueDate.Format(dateLayout)},
			{"Due", calc.DueDate.Format(dateLayout)},
			{"Returned", calc.ReturnDate.Format(dateLayout)},
			{"Days overdue", strconv.Itoa(calc.OverdueDays)},
			{"Fine", strconv.Itoa(calc.Fine)},
		}
		if calc.BookTitle != "" {
			pairs = append([][2]string{{"Book", calc.BookTitle}}, pairs...)
		}
		output.KeyValue(pairs...)
		return nil
	},
}

func init() {
	fineCalcCmd.Flags().StringVar(&fineIssued, "issued", "", "Issue date (YYYY-MM-DD)")
	fineCalcCmd.Flags().StringVar(&fineReturned, "returned", "", "Return date (YYYY-MM-DD)")
	fineCalcCmd.Flags().StringVar(&fineTitle, "title", "", "Book title to show")
	_ = fineCalcCmd.MarkFlagRequired("issued")
	_ = fineCalcCmd.MarkFlagRequired("returned")
	fineCmd.AddCommand(fineCalcCmd)
}
