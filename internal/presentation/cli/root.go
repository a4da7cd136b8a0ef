// Package cli exposes the inventory service as a cobra command tree.
package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Options customises Execute. Zero values use the process defaults.
type Options struct {
	// BaseLogger replaces the logger built from configuration.
	BaseLogger *zap.Logger
	Out        io.Writer
	Err        io.Writer
}

type globalFlags struct {
	configFile  string
	envFile     string
	dataFile    string
	dumpMetrics bool
}

// Execute runs the command line described by args.
func Execute(ctx context.Context, args []string, opts Options) error {
	rt := &runtime{}
	flags := &globalFlags{}
	root := newRootCommand(rt, flags, opts)
	root.SetArgs(args)
	if opts.Out != nil {
		root.SetOut(opts.Out)
	}
	if opts.Err != nil {
		root.SetErr(opts.Err)
	}

	err := root.ExecuteContext(ctx)
	closeErr := rt.close(ctx, root.ErrOrStderr(), flags.dumpMetrics)
	return errors.Join(err, closeErr)
}

func newRootCommand(rt *runtime, flags *globalFlags, opts Options) *cobra.Command {
	root := &cobra.Command{
		Use:   "stockkeeper",
		Short: "Track item quantities in a JSON stock file",
		Long: `stockkeeper keeps item -> quantity counts in a JSON file and reports low stock.

Without a subcommand it runs a short demonstration against the configured data file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd.Context(), flags, opts)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, rt)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "config file (default ./stockkeeper.yaml or ~/.stockkeeper/stockkeeper.yaml)")
	pf.StringVar(&flags.envFile, "env-file", "", "dotenv file (default ./.env when present)")
	pf.StringVarP(&flags.dataFile, "file", "f", "", "stock data file (overrides data_file)")
	pf.BoolVar(&flags.dumpMetrics, "metrics", false, "print collected metrics to stderr on exit")

	root.AddCommand(
		newDemoCommand(rt),
		newAddCommand(rt),
		newRemoveCommand(rt),
		newGetCommand(rt),
		newLowCommand(rt),
		newReportCommand(rt),
		newExportCommand(rt),
	)
	return root
}
