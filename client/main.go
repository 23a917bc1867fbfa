package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/provisioner/kubernetes"
	"github.com/gammadia/kubeagents/provisioner/local"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

var verbose bool

// clouds is loaded before any command that needs it runs.
var clouds *cloud.Config

var rootCmd = &cobra.Command{
	Use:   "kubeagents",
	Short: "kubeagents provisions CI build agents as Kubernetes pods.",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		file := lo.Must(cmd.Flags().GetString("config"))
		if clouds, err = cloud.Read(file); err != nil {
			return fmt.Errorf("failed to load clouds: %w", err)
		}
		return nil
	},
}

// noConfig is used by commands that do not read the clouds configuration.
func noConfig(*cobra.Command, []string) error {
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("config", lo.Must(lo.Coalesce(os.Getenv("KUBEAGENTS_CONFIG"), "clouds.yaml")), "clouds configuration file")
	rootCmd.PersistentFlags().Bool("local", false, "use a simulated in-memory cluster instead of the configured ones")
}

// selectClouds returns the cloud named name, or every cloud when name is empty.
func selectClouds(name string) ([]cloud.Cloud, error) {
	if name == "" {
		return clouds.Clouds, nil
	}
	c, ok := clouds.Cloud(name)
	if !ok {
		return nil, fmt.Errorf("unknown cloud '%s'", name)
	}
	return []cloud.Cloud{c}, nil
}

func newCluster(cmd *cobra.Command, c cloud.Cloud) (kubernetes.Cluster, error) {
	if lo.Must(cmd.Flags().GetBool("local")) {
		return local.New(local.Config{
			Logger:       logger(),
			StartupDelay: 500 * time.Millisecond,
			ReadyDelay:   500 * time.Millisecond,
		}), nil
	}

	client, err := kubernetes.NewClient(c)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, color.HiRedString(fmt.Sprint(err))))
		os.Exit(1)
	}
}
