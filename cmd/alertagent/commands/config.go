package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"alertagent/internal/config"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if !showSecrets {
				cfg = cfg.Redacted()
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secrets in clear text")
	return cmd
}

func newInitConfigCmd() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a template .env file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteEnvFile(output, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created configuration file: %s\nEdit it and add your API keys.\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", ".env", "Output file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
