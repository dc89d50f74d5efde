package benchmarks

import "github.com/spf13/cobra"

func RandomCommand() *cobra.Command {
	o := &trainOptions{baseline: true}
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Run the uniformly random baseline on the cart-pole task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraining(o)
		},
	}
	o.addFlags(cmd)
	return cmd
}
