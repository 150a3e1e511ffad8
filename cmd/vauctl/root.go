package main

import (
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"code.vaulink.org/golang/internal/observability"
)

type rootOptions struct {
	noColor   bool
	verbose   bool
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "vauctl",
		Short: "Trust store, VAU channel & secure messaging tooling",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.noColor {
				color.NoColor = true
			}
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			log, err := observability.NewLogger(os.Stderr, opts.logFormat, level)
			if nil != err {
				return wrapError(err, "invalid --log-format")
			}
			slog.SetDefault(log)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", observability.FormatText, "Log format, text, json or none")

	cmd.AddCommand(newPKICmd(), newTrustStoreCmd(), newServeCmd(), newAPDUCmd(), newAlgosCmd())

	return cmd
}
