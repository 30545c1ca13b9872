package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/toolsgen/internal/config"
	"github.com/signalnine/toolsgen/internal/toolspec"
	"github.com/signalnine/toolsgen/internal/validation"
)

func newValidateCmd() *cobra.Command {
	var toolsPath string
	var threshold float64
	cmd := &cobra.Command{
		Use:   "validate [output-dir]",
		Short: "Re-check generated records",
		Long:  "Re-validate every record in train.jsonl and val.jsonl: offered tools come from the pool, calls name offered tools with schema-valid arguments, judge scores sum correctly and verdicts match the threshold.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Judge.Threshold
			}
			tools, err := toolspec.Load(toolsPath)
			if err != nil {
				return err
			}
			rep, err := validation.CheckDir(args[0], tools, threshold)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, issue := range rep.Issues {
				fmt.Fprintln(out, issue)
			}
			fmt.Fprintf(out, "%d records checked, %d issues\n", rep.Records, len(rep.Issues))
			if !rep.OK() {
				return fmt.Errorf("%d invalid records in %s", len(rep.Issues), args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&toolsPath, "tools", "", "tool definitions the records were generated from")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "judge threshold (defaults to the config value)")
	_ = cmd.MarkFlagRequired("tools")
	return cmd
}
