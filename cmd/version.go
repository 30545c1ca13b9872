package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/toolsgen/internal/judge"
	"github.com/signalnine/toolsgen/internal/result"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "toolsgen %s\n", Version)
			fmt.Fprintf(out, "manifest %s, rubric %s\n", result.ManifestVersion, judge.RubricVersion)
		},
	}
}
