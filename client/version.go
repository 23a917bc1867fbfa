package main

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version number of kubeagents",
	Args:  cobra.NoArgs,

	PersistentPreRunE: noConfig,

	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("kubeagents version %s (%s)\n", version, shortCommit(commit))
		return nil
	},
}

func shortCommit(commit string) string {
	return commit[:min(len(commit), 7)]
}
