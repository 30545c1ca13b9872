package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/signalnine/toolsgen/internal/config"
	"github.com/signalnine/toolsgen/internal/logging"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "toolsgen",
		Short:        "Generate tool-calling training data with LLM judging",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (defaults apply when empty)")
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig reads the config and exports the secrets env file so the API
// key can come from it.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	set, err := config.ApplyEnvFile(cfg.Secrets.EnvFile)
	if err != nil {
		return nil, nil, err
	}
	if len(set) > 0 {
		logger.Debug("loaded secrets env file", "path", cfg.Secrets.EnvFile, "keys", len(set))
	}
	return cfg, logger, nil
}
