package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfsteg/frame"
	"github.com/wudi/pdfsteg/security"
	"github.com/wudi/pdfsteg/stego"
)

func newEmbedCmd(opts *globalOptions) *cobra.Command {
	var message string
	var pass passphraseFlags

	cmd := &cobra.Command{
		Use:   "embed INPUT OUTPUT [MESSAGE_FILE]",
		Short: "Hide a message in INPUT and write the result to OUTPUT",
		Long: "Hide a message in INPUT and write the result to OUTPUT.\n\n" +
			"The message is read from MESSAGE_FILE (\"-\" for stdin) or given with --message.",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			inline := cmd.Flags().Changed("message")
			switch {
			case inline && len(args) == 3:
				return errors.New("give either MESSAGE_FILE or --message, not both")
			case !inline && len(args) == 2:
				return errors.New("missing MESSAGE_FILE or --message")
			}

			e, err := opts.env(cmd)
			if err != nil {
				return err
			}
			pdf, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var msg []byte
			if inline {
				msg = []byte(message)
			} else {
				if args[0] == stdioName && args[2] == stdioName {
					return errors.New("INPUT and MESSAGE_FILE cannot both be stdin")
				}
				if msg, err = readInput(cmd, args[2]); err != nil {
					return err
				}
			}

			passphrase, err := pass.resolve(cmd)
			if err != nil {
				return err
			}
			if passphrase != "" {
				if msg, err = security.Seal(passphrase, msg); err != nil {
					return err
				}
			}

			codec, err := e.codec()
			if err != nil {
				return err
			}
			out, err := codec.Embed(cmd.Context(), pdf, msg)
			e.logResult(stego.NewResult("embed", nil, err))
			if err != nil {
				var capErr *stego.CapacityError
				if errors.As(err, &capErr) {
					return fmt.Errorf("message needs %d bits but %s can hide only %d: %w",
						capErr.Need, args[0], capErr.Have, stego.ErrCapacityExceeded)
				}
				return err
			}
			if err := writeOutput(cmd, args[1], out); err != nil {
				return err
			}
			fmt.Fprintf(statusWriter(cmd, args[1]), "Message successfully embedded into %s (%d bytes, %d bits)\n",
				args[1], len(msg), frame.BitLen(len(msg)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "message text to hide")
	pass.register(cmd)
	return cmd
}
