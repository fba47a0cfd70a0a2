package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfsteg/normalize"
)

func newNormalizeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize INPUT OUTPUT",
		Short: "Decode compressed page content streams so they can carry a message",
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
			out, res, err := normalize.Normalize(cmd.Context(), pdf, normalize.Config{
				Limits:   e.cfg.Limits,
				Recovery: e.recovery(),
				Logger:   e.logger,
			})
			if err != nil {
				return err
			}
			if err := writeOutput(cmd, args[1], out); err != nil {
				return err
			}
			w := statusWriter(cmd, args[1])
			fmt.Fprintf(w, "Decoded %d content stream(s) into %s\n", len(res.Decoded), args[1])
			for _, s := range res.Skipped {
				fmt.Fprintf(w, "  left object %d %d encoded: %s\n", s.Ref.Num, s.Ref.Gen, s.Reason)
			}
			return nil
		},
	}
}
