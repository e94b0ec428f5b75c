package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"proquiz-service/internal/auth"
)

// NewHashPINCmd prints the bcrypt hash of a super-admin PIN for
// SUPER_ADMIN_PIN_HASH.
func NewHashPINCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-pin",
		Short: "Hash a 6-digit super-admin PIN",
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := readPIN(cmd)
			if err != nil {
				return err
			}
			hash, err := auth.HashPIN(pin)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// readPIN prompts without echo on a terminal and reads a line otherwise.
func readPIN(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read pin: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "PIN: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read pin: %w", err)
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Confirm PIN: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read pin: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("pins do not match")
	}
	return string(first), nil
}
