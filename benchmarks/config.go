package benchmarks

import (
	"github.com/spf13/cobra"
)

// ConfigCommand prints the hyper-parameters used for training,
// the defaults or the ones loaded from --config
func ConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the DQN configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			return config.WriteConfig(cmd.OutOrStdout())
		},
	}
}
