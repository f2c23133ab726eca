// Package commands implements the alertagent command line.
package commands

import (
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"alertagent/internal/config"
)

type rootOptions struct {
	configPath string
	envFile    string
	verbose    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   config.AppName,
		Short: "Daily alert digest and ops agents",
		Long: `alertagent collects the last day's alerts from Grafana, groups them,
renders a digest and posts it to Slack. It also serves an HTTP API, an MCP
server and a set of tool-using ops agents.`,
		Version:       config.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the YAML configuration file (default "+config.DefaultConfigFile+" when present)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded below the process environment")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newRunCmd(opts),
		newConfigCmd(opts),
		newInitConfigCmd(),
		newValidateCmd(opts),
		newCollectCmd(opts),
		newStatusCmd(opts),
		newSchedulerCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newAskCmd(opts),
	)
	return cmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel its context.
func Execute() error {
	return NewRootCmd().ExecuteContext(ctrl.SetupSignalHandler())
}
