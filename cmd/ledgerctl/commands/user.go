package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/libraryledger/ledger-server/cmd/ledgerctl/output"
	"github.com/libraryledger/ledger-server/internal/domain"
	"github.com/libraryledger/ledger-server/internal/service"
)

var (
	userRole      string
	userName      string
	userStudentID string
	userUsername  string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register an account",
	Long: `Registers a student, librarian or admin. The password is read from the
terminal without echo, or from the first two lines of stdin when it is not
a terminal.`,
	Example: `  ledgerctl user add --role student --name "Dana Scully" --student-id S2001
  ledgerctl user add --role librarian --username marian`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		password, confirm, err := readPasswords(os.Stdin)
		if err != nil {
			return err
		}

		e, err := openEnv(ctx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		directory := service.NewDirectoryService(e.store, e.log.Logger)
		user, err := directory.AddUser(ctx, service.SystemActor, service.AddUserRequest{
			Role:            domain.Role(userRole),
			Name:            userName,
			StudentID:       userStudentID,
			Username:        userUsername,
			Password:        password,
			ConfirmPassword: confirm,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return output.JSON(user)
		}
		label := user.Username
		if user.Role == domain.RoleStudent {
			label = fmt.Sprintf("%s (%s)", user.Name, user.StudentID)
		}
		output.Success("Added %s %s", user.Role, label)
		output.Muted("id %s", user.ID)
		return nil
	},
}

// readPasswords prompts twice on a terminal. Piped input supplies the
// password and its confirmation on consecutive lines.
func readPasswords(in *os.File) (string, string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		password, err := promptPassword(fd, "Password: ")
		if err != nil {
			return "", "", err
		}
		confirm, err := promptPassword(fd, "Confirm password: ")
		if err != nil {
			return "", "", err
		}
		return password, confirm, nil
	}
	return readPasswordLines(in)
}

func promptPassword(fd int, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func readPasswordLines(r io.Reader) (string, string, error) {
	sc := bufio.NewScanner(r)
	var lines []string
	for len(lines) < 2 && sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	switch len(lines) {
	case 0:
		return "", "", errors.New("no password given on stdin")
	case 1:
		// A single line confirms itself.
		return lines[0], lines[0], nil
	}
	return lines[0], lines[1], nil
}

func init() {
	userAddCmd.Flags().StringVar(&userRole, "role", string(domain.RoleStudent), "student, librarian or admin")
	userAddCmd.Flags().StringVar(&userName, "name", "", "Student name")
	userAddCmd.Flags().StringVar(&userStudentID, "student-id", "", "Student number")
	userAddCmd.Flags().StringVar(&userUsername, "username", "", "Staff login name")
	userCmd.AddCommand(userAddCmd)
}
