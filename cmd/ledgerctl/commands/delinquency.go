package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/libraryledger/ledger-server/cmd/ledgerctl/output"
	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/service"
)

var delinquencyCmd = &cobra.Command{
	Use:   "delinquency [student]",
	Short: "Show who may borrow",
	Long: `Reports overdue books and unpaid fines. The student may be given by id,
student number or name; without one every student is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		ledger := service.NewLedgerService(e.store, e.policy(), nil, nil, e.log.Logger)

		type row struct {
			Name      string                    `json:"name"`
			StudentID string                    `json:"student_id"`
			Status    *domain.DelinquencyStatus `json:"status"`
		}
		var rows []row

		if len(args) == 1 {
			status, err := ledger.GetDelinquencyStatus(ctx, args[0])
			if err != nil {
				return err
			}
			student, err := e.store.Students().GetStudent(ctx, status.StudentID)
			if err != nil {
				return err
			}
			rows = append(rows, row{Name: student.Name, StudentID: student.StudentID, Status: status})
		} else {
			students, err := e.store.Students().ListStudents(ctx)
			if err != nil {
				return err
			}
			for _, s := range students {
				status, err := ledger.GetDelinquencyStatus(ctx, s.ID)
				if err != nil {
					return err
				}
				rows = append(rows, row{Name: s.Name, StudentID: s.StudentID, Status: status})
			}
		}

		if jsonOutput {
			return output.JSON(rows)
		}
		if len(rows) == 0 {
			output.Muted("No students")
			return nil
		}
		table := make([][]string, 0, len(rows))
		for _, r := range rows {
			table = append(table, []string{
				r.Name,
				r.StudentID,
				strconv.Itoa(r.Status.OverdueBooksCount),
				strconv.Itoa(r.Status.UnpaidFinesCount),
				output.Status(r.Status.IsDelinquent, "delinquent", "ok"),
			})
		}
		output.Table([]string{"NAME", "STUDENT ID", "OVERDUE", "UNPAID FINES", "STATUS"}, table)
		return nil
	},
}
