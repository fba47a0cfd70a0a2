package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const stdioName = "-"

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == stdioName {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// writeOutput writes data to path through a temporary file in the same
// directory, so path either holds the complete result or is untouched.
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == stdioName {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// statusWriter is where success messages go: stdout, unless the result
// itself is being written there.
func statusWriter(cmd *cobra.Command, output string) io.Writer {
	if output == stdioName {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

// passphraseFlags are shared by embed and extract.
type passphraseFlags struct {
	passphrase string
	ask        bool
}

func (p *passphraseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.passphrase, "passphrase", "", "seal the message with this passphrase")
	cmd.Flags().BoolVar(&p.ask, "ask-passphrase", false, "prompt for the passphrase on the terminal")
	cmd.MarkFlagsMutuallyExclusive("passphrase", "ask-passphrase")
}

// resolve returns the passphrase to use, or "" when the message is not
// sealed.
func (p *passphraseFlags) resolve(cmd *cobra.Command) (string, error) {
	if !p.ask {
		return p.passphrase, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--ask-passphrase needs a terminal on stdin")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Passphrase: ")
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if len(pass) == 0 {
		return "", errors.New("empty passphrase")
	}
	return string(pass), nil
}
