package main

import (
	"context"
	"fmt"

	"github.com/gammadia/kubeagents/client/ui"
	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/provisioner/kubernetes"
	"github.com/gammadia/kubeagents/scheduler"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type clusterFactory func(cloud.Cloud) (kubernetes.Cluster, error)

var checkCmd = &cobra.Command{
	Use:   "check [LABEL]",
	Short: "Ask every cloud whether it could provision an agent for LABEL",
	Args:  cobra.MaximumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		selected, err := selectClouds(lo.Must(cmd.Flags().GetString("cloud")))
		if err != nil {
			return err
		}
		rawLabel := lo.FirstOr(args, "")

		accepted := checkClouds(cmd.Context(), selected, rawLabel, func(c cloud.Cloud) (kubernetes.Cluster, error) {
			return newCluster(cmd, c)
		})
		if len(accepted) == 0 {
			return fmt.Errorf("no cloud can provision agents for label '%s'", rawLabel)
		}

		cmd.Printf("Agents for label '%s' would be provisioned by cloud '%s'\n", rawLabel, ui.NameColor.Sprint(accepted[0]))
		return nil
	},
}

func init() {
	checkCmd.Flags().String("cloud", "", "only check this cloud")
}

// checkClouds runs the admission check of every cloud, in order, and returns
// the names of the clouds that accepted.
func checkClouds(ctx context.Context, selected []cloud.Cloud, rawLabel string, newCluster clusterFactory) []string {
	var accepted []string

	for _, c := range selected {
		spinner := ui.NewSpinner(fmt.Sprintf("Checking cloud '%s'", c.DisplayName))

		cluster, err := newCluster(c)
		if err != nil {
			spinner.Fail(fmt.Sprintf("Cloud '%s': %s", c.DisplayName, err))
			continue
		}

		p := kubernetes.New(c, cluster, scheduler.NewRegistry(logger()), logger())
		err = p.Feasible(ctx, rawLabel)
		if err != nil {
			spinner.Fail(fmt.Sprintf("Cloud '%s': %s", c.DisplayName, err))
		} else if pods, err := p.Pods(ctx); err != nil {
			spinner.Warn(fmt.Sprintf("Cloud '%s' accepts, but its agents could not be listed: %s", c.DisplayName, err))
			accepted = append(accepted, c.Name)
		} else {
			spinner.Success(fmt.Sprintf("Cloud '%s' accepts (%d agent pods, cap %s)", c.DisplayName, len(pods), capString(c.InstanceCap)))
			accepted = append(accepted, c.Name)
		}

		p.Shutdown()
		p.Wait()
	}

	return accepted
}

func capString(instanceCap int) string {
	return lo.Ternary(instanceCap == 0, "unlimited", fmt.Sprint(instanceCap))
}
