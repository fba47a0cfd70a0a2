package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfsteg/config"
	"github.com/wudi/pdfsteg/observability"
	"github.com/wudi/pdfsteg/recovery"
	"github.com/wudi/pdfsteg/stego"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "pdfsteg:", err)
		os.Exit(1)
	}
}

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	strict     bool
	verbose    bool
	workers    int
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "pdfsteg",
		Short:         "Hide messages in the content streams of PDF files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "TOML configuration file")
	root.PersistentFlags().BoolVar(&opts.strict, "strict", false, "fail on malformed structure instead of repairing it")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	root.PersistentFlags().IntVar(&opts.workers, "workers", 0, "content streams scanned in parallel (0 uses the config value)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newStatCmd(opts))
	root.AddCommand(newEmbedCmd(opts))
	root.AddCommand(newExtractCmd(opts))
	root.AddCommand(newNormalizeCmd(opts))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "pdfsteg 0.1.0-dev")
		},
	}
}

// env is what a subcommand needs after flags and configuration are merged.
type env struct {
	cfg    config.Config
	logger observability.Logger
}

func (o *globalOptions) env(cmd *cobra.Command) (*env, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("strict") {
		cfg.Engine.Strict = o.strict
	}
	if o.workers < 0 {
		return nil, fmt.Errorf("--workers must not be negative, got %d", o.workers)
	}
	if o.workers > 0 {
		cfg.Engine.Workers = o.workers
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	logger := observability.NewSlogLogger(slog.New(handler)).With(observability.String("cmd", cmd.Name()))
	return &env{cfg: cfg, logger: logger}, nil
}

func (e *env) recovery() recovery.Strategy {
	if e.cfg.Engine.Strict {
		return recovery.NewStrictStrategy()
	}
	return recovery.NewLenientStrategy(e.logger)
}

func (e *env) codec() (*stego.Codec, error) {
	return stego.New(stego.Config{
		Policy:   e.cfg.Carrier,
		Limits:   e.cfg.Limits,
		Workers:  e.cfg.Engine.Workers,
		Verify:   e.cfg.Engine.Verify,
		Recovery: e.recovery(),
		Logger:   e.logger,
	})
}

// logResult records the classified outcome of a codec operation.
func (e *env) logResult(res stego.Result) {
	fields := []observability.Field{
		observability.String("op", res.Op),
		observability.Bool("ok", res.OK),
		observability.String("kind", res.Kind.String()),
	}
	if res.Report != nil {
		fields = append(fields, observability.Int("capacity_bits", res.Report.TotalBits))
	}
	e.logger.Debug("operation finished", fields...)
}
