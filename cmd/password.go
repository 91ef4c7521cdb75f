package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/juanchiconsoli/email-monitor/credential"
)

func newPasswordCommand(app *App) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "password ACCOUNT",
		Short: "Store or delete the password of an account in the system keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account := strings.TrimSpace(args[0])
			if account == "" {
				return fmt.Errorf("account is empty")
			}

			store, err := credential.Open()
			if err != nil {
				return err
			}

			if remove {
				if err := store.Delete(account); err != nil {
					return err
				}
				pterm.Success.WithWriter(app.Out).Printfln("Password for %s removed", account)
				return nil
			}

			password, err := readPassword(cmd.InOrStdin(), app.Err, account)
			if err != nil {
				return err
			}
			if err := store.Set(account, password); err != nil {
				return err
			}
			pterm.Success.WithWriter(app.Out).Printfln("Password for %s stored", account)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "delete", false, "Remove the stored password")
	return cmd
}

// readPassword prompts without echo on a terminal and reads one line otherwise.
func readPassword(in io.Reader, prompt io.Writer, account string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(prompt, "Password for %s: ", account)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return checkPassword(string(b))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return checkPassword(strings.TrimRight(line, "\r\n"))
}

func checkPassword(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("password is empty")
	}
	return p, nil
}
