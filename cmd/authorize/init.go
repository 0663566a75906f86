package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/provable-labs/remote-prover/internal/authspec"
)

func initCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample call spec",
		Long:  "Print (or write to a file) a sample CallSpec YAML document to start from",
		RunE: func(cmd *cobra.Command, args []string) error {
			sample := authspec.ExampleYAML()
			if output == "" || output == "-" {
				fmt.Fprint(cmd.OutOrStdout(), sample)
				return nil
			}
			return os.WriteFile(output, []byte(sample), 0o600)
		},
	}

	cmd.Flags().StringVar(&output, "out", "-", "Output path, or - for stdout")

	return cmd
}
