package main

import (
	"github.com/spf13/cobra"

	"github.com/wudi/pdfsteg/stego"
)

func newStatCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stat INPUT",
		Short: "Report how many bits INPUT can hide",
		Args:  cobra.ExactArgs(1),
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
			report, err := codec.Stat(cmd.Context(), pdf)
			e.logResult(stego.NewResult("stat", report, err))
			if err != nil {
				return err
			}
			return report.WriteText(cmd.OutOrStdout())
		},
	}
}
