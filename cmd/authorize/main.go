package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "authorize",
		Short: "Offline authorization builder",
		Long:  "Build ProveRequest JSON documents for the remote prover from a YAML call spec, without ever sending a private key over the network",
	}

	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(initCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
