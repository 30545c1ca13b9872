package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalnine/toolsgen/internal/sampling"
	"github.com/signalnine/toolsgen/internal/toolspec"
)

func newListCmd() *cobra.Command {
	var toolsPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tools with parameter counts and semantic clusters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := toolspec.Load(toolsPath)
			if err != nil {
				return err
			}
			return writeToolList(cmd.OutOrStdout(), tools)
		},
	}
	cmd.Flags().StringVar(&toolsPath, "tools", "", "tool definitions file (.json or .yaml)")
	_ = cmd.MarkFlagRequired("tools")
	return cmd
}

func writeToolList(w io.Writer, tools []*toolspec.Tool) error {
	cluster := make([]int, len(tools))
	clusters := sampling.Clusters(tools, sampling.DefaultClusterThreshold)
	for c, members := range clusters {
		for _, i := range members {
			cluster[i] = c
		}
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tPARAMS\tCLUSTER\tSCHEMA")
	for i, t := range tools {
		status := "ok"
		if _, err := t.Schema(); err != nil {
			status = "invalid: " + err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", t.Name, t.ParamCount(), cluster[i], status)
	}
	fmt.Fprintf(tw, "\n%d tools, %d clusters\n", len(tools), len(clusters))
	if len(clusters) > 1 {
		names := make([]string, len(clusters))
		for c, members := range clusters {
			var ms []string
			for _, i := range members {
				ms = append(ms, tools[i].Name)
			}
			names[c] = fmt.Sprintf("  %d: %s", c, strings.Join(ms, ", "))
		}
		fmt.Fprintln(tw, strings.Join(names, "\n"))
	}
	return tw.Flush()
}
