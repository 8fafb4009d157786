package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after file, environment and flag overrides, as YAML.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := getConfig()
		data, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", cfg.Path(), data)
		return nil
	},
}
