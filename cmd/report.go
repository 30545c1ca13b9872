package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/toolsgen/internal/config"
	"github.com/signalnine/toolsgen/internal/pricing"
	"github.com/signalnine/toolsgen/internal/report"
)

// builtinPricing selects the embedded price table.
const builtinPricing = "builtin"

func newReportCmd() *cobra.Command {
	var format, pricingPath string
	cmd := &cobra.Command{
		Use:   "report [output-dir]",
		Short: "Summarize a finished generation run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			dir := cfg.Output.Dir
			if len(args) > 0 {
				dir = args[0]
			}
			var table *pricing.Table
			switch pricingPath {
			case "":
			case builtinPricing:
				table = pricing.Default()
			default:
				table, err = pricing.Load(pricingPath)
				if err != nil {
					return err
				}
			}
			s, err := report.Build(dir, table)
			if err != nil {
				return fmt.Errorf("reading %s: %w", dir, err)
			}
			return report.Write(s, format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().StringVar(&pricingPath, "pricing", "", `pricing YAML file, or "builtin"`)
	return cmd
}
