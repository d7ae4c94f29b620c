// Command confeitaria runs the subscription gate API and its maintenance jobs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "confeitaria",
		Short:         "Subscription gate for the Confeitaria bakery app",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default ./.env when present)")

	root.AddCommand(
		serveCmd(&envFiles),
		migrateCmd(&envFiles),
		reconcileCmd(&envFiles),
	)
	return root
}
