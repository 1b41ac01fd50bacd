package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sungwon/mailbridge/internal/auth"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an intake API key and its bcrypt hash",
		Long: "Prints a new bearer key for /api/v1/emails together with the hash " +
			"to place in api.intake_key_hash. Use --key to hash an existing key.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.OutOrStdout(), key)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "hash this key instead of generating one")
	return cmd
}

func run(out io.Writer, key string) error {
	if key == "" {
		generated, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}
		key = generated
	}

	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "key:  %s\n", key)
	fmt.Fprintf(out, "hash: %s\n", hash)
	return nil
}
