package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	dominv "github.com/Zhima-Mochi/stockkeeper/internal/domain/inventory"
	"github.com/Zhima-Mochi/stockkeeper/internal/infrastructure/export"
	"github.com/Zhima-Mochi/stockkeeper/internal/observability"
)

func newDemoCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the built-in demonstration sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, rt)
		},
	}
}

// runDemo starts from an empty stock, performs a fixed sequence of operations
// (some deliberately rejected), saves, reloads and prints the report.
func runDemo(cmd *cobra.Command, rt *runtime) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	var activity dominv.ActivityLog

	// Rejections are part of the demonstration; they are logged by the service.
	_ = rt.svc.Add(ctx, "apple", 10, &activity)
	_ = rt.svc.Add(ctx, "banana", -2, &activity)
	_ = rt.svc.Add(ctx, "123", 10, &activity)
	_ = rt.svc.Remove(ctx, "apple", 3)
	_ = rt.svc.Remove(ctx, "orange", 1)

	fmt.Fprintln(out, "Apple stock:", rt.svc.Quantity(ctx, "apple"))
	fmt.Fprintln(out, "Low items:", rt.svc.LowStock(ctx, rt.cfg.LowStockThreshold))

	if err := rt.svc.Save(ctx, rt.dataFile); err != nil {
		return err
	}
	if err := rt.svc.Load(ctx, rt.dataFile); err != nil {
		return err
	}
	rt.log.Debug("demo_activity", observability.F("entries", activity.Len()))
	return rt.svc.Report(ctx, out)
}

func newAddCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "add ITEM QUANTITY",
		Short:   "Add a positive quantity of an item",
		Example: "  stockkeeper add apple 10",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			qty, err := parseQuantityArg(rt, args[1])
			if err != nil {
				return err
			}
			if err := rt.loadStock(ctx); err != nil {
				return err
			}
			var activity dominv.ActivityLog
			if err := rt.svc.Add(ctx, args[0], qty, &activity); err != nil {
				return err
			}
			if err := rt.svc.Save(ctx, rt.dataFile); err != nil {
				return err
			}
			for _, a := range activity.Entries() {
				fmt.Fprintln(cmd.OutOrStdout(), a.Text)
			}
			return nil
		},
	}
}

func newRemoveCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ITEM QUANTITY",
		Aliases: []string{"rm"},
		Short:   "Remove a quantity of an item, dropping it once nothing is left",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			qty, err := parseQuantityArg(rt, args[1])
			if err != nil {
				return err
			}
			if err := rt.loadStock(ctx); err != nil {
				return err
			}
			if err := rt.svc.Remove(ctx, args[0], qty); err != nil {
				return err
			}
			if err := rt.svc.Save(ctx, rt.dataFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %d\n", args[0], rt.svc.Quantity(ctx, args[0]))
			return nil
		},
	}
}

func newGetCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "get ITEM",
		Short: "Print the quantity held for an item (0 when absent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := rt.loadStock(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rt.svc.Quantity(ctx, args[0]))
			return nil
		},
	}
}

func newLowCommand(rt *runtime) *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "low",
		Short: "List items whose quantity is below the threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			threshold := rt.cfg.LowStockThreshold
			if cmd.Flags().Changed("threshold") {
				n, err := dominv.ParseThreshold(raw)
				if err != nil {
					rt.log.Warn("invalid_threshold_argument",
						observability.F("value", raw),
						observability.F("error", err),
					)
					return err
				}
				threshold = n
			}
			if err := rt.loadStock(ctx); err != nil {
				return err
			}
			for _, item := range rt.svc.LowStock(ctx, threshold) {
				fmt.Fprintln(cmd.OutOrStdout(), item)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&raw, "threshold", "t", "",
		"report items strictly below this quantity (default from low_stock_threshold)")
	return cmd
}

func newReportCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print one line per item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := rt.loadStock(ctx); err != nil {
				return err
			}
			return rt.svc.Report(ctx, cmd.OutOrStdout())
		},
	}
}

func newExportCommand(rt *runtime) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stock to stdout as yaml or json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("format") {
				format = rt.cfg.ExportFormat
			}
			if err := rt.loadStock(ctx); err != nil {
				return err
			}
			return export.Write(cmd.OutOrStdout(), format, rt.svc.Snapshot())
		},
	}
	cmd.Flags().StringVar(&format, "format", export.FormatYAML, "output format: yaml or json (default from export_format)")
	return cmd
}

func parseQuantityArg(rt *runtime, arg string) (int, error) {
	qty, err := dominv.ParseQuantity(arg)
	if err != nil {
		rt.log.Warn("invalid_quantity_argument",
			observability.F("value", arg),
			observability.F("error", err),
		)
		return 0, err
	}
	return qty, nil
}
