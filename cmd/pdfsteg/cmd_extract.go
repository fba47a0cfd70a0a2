package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfsteg/observability"
	"github.com/wudi/pdfsteg/security"
	"github.com/wudi/pdfsteg/stego"
)

var errNoMessage = errors.New("no valid hidden message found")

func newExtractCmd(opts *globalOptions) *cobra.Command {
	var pass passphraseFlags

	cmd := &cobra.Command{
		Use:   "extract INPUT OUTPUT",
		Short: "Recover the message hidden in INPUT and write it to OUTPUT",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.env(cmd)
			if err != nil {
				return err
			}
			pdf, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			codec, err := e.codec()
			if err != nil {
				return err
			}
			msg, err := codec.Extract(cmd.Context(), pdf)
			res := stego.NewResult("extract", nil, err)
			e.logResult(res)
			if err != nil {
				if res.Kind.NoMessage() {
					e.logger.Debug("extract failed", observability.Error("error", err))
					return errNoMessage
				}
				return err
			}

			passphrase, err := pass.resolve(cmd)
			if err != nil {
				return err
			}
			if passphrase != "" {
				if msg, err = security.Open(passphrase, msg); err != nil {
					return err
				}
			}
			if err := writeOutput(cmd, args[1], msg); err != nil {
				return err
			}
			fmt.Fprintf(statusWriter(cmd, args[1]), "Message successfully extracted to %s (%d bytes)\n", args[1], len(msg))
			return nil
		},
	}
	pass.register(cmd)
	return cmd
}
