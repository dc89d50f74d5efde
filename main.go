package main

import (
	"os"

	"github.com/zeu5/cartpole-dqn/benchmarks"
)

// main entry point to training and the baselines
func main() {
	// rootCommand defines a command line argument parser (some arguments and a subcommand to run)
	rootCommand := benchmarks.GetRootCommand()
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
