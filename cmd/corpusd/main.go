package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parchment-ai/corpusd/internal/cli"
	"github.com/parchment-ai/corpusd/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "corpusd",
		Short: "Corpus ingestion and retrieval daemon",
		Long:  "Corpusd ingests documents into a tenant-scoped vector corpus and serves retrieval over it",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.ReconcileCmd())
	rootCmd.AddCommand(admin.MigrateCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
