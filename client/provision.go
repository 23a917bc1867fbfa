package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gammadia/kubeagents/client/ui"
	"github.com/gammadia/kubeagents/pipeline"
	"github.com/gammadia/kubeagents/provisioner/kubernetes"
	"github.com/gammadia/kubeagents/scheduler"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

const terminationTimeout = time.Minute

var provisionCmd = &cobra.Command{
	Use:   "provision [LABEL]",
	Short: "Provision agents and wait for them to come online",
	Long: "Provision agents on a cloud and wait for them to come online. Unless --keep is given, " +
		"the agents are terminated once they are all accounted for.",
	Args: cobra.MaximumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		selected, err := selectClouds(lo.Must(cmd.Flags().GetString("cloud")))
		if err != nil {
			return err
		}
		c := selected[0]

		cluster, err := newCluster(cmd, c)
		if err != nil {
			return fmt.Errorf("failed to connect to cloud '%s': %w", c.Name, err)
		}

		registry := scheduler.NewRegistry(logger())
		p := kubernetes.New(c, cluster, registry, logger())
		registry.SetOnlineProbe(c.Name, p.OnlineProbe())

		nodes, err := provisionAgents(cmd.Context(), p, lo.FirstOr(args, ""), lo.Must(cmd.Flags().GetInt("count")))
		for _, node := range nodes {
			cmd.Printf("%s  %s  %s\n", ui.NameColor.Sprint(node.Name()), node.Pod, node.Template)
		}
		if !lo.Must(cmd.Flags().GetBool("keep")) {
			err = errors.Join(err, terminateAgents(context.WithoutCancel(cmd.Context()), p, nodes))
		}

		p.Shutdown()
		p.Wait()
		return err
	},
}

func init() {
	provisionCmd.Flags().String("cloud", "", "cloud to provision on (defaults to the first one)")
	provisionCmd.Flags().IntP("count", "n", 1, "number of agents to provision")
	provisionCmd.Flags().Bool("keep", false, "keep the agents running")
}

// provisionAgents returns the nodes that came online, and the errors of
// those that did not.
func provisionAgents(ctx context.Context, p *kubernetes.Provisioner, rawLabel string, count int) ([]pipeline.Node, error) {
	if count < 1 {
		return nil, errors.New("count must be greater than 0")
	}

	var nodes []pipeline.Node
	var errs []error

	for _, planned := range p.Provision(rawLabel, count) {
		spinner := ui.NewSpinner(fmt.Sprintf("Provisioning agent %s", planned.ID))

		node, err := planned.Wait(ctx)
		if err != nil {
			spinner.Fail(fmt.Sprintf("Agent %s: %s", planned.ID, err))
			errs = append(errs, err)
			continue
		}

		spinner.Success(fmt.Sprintf("Agent %s is online", node.Name()))
		nodes = append(nodes, node)
	}

	return nodes, errors.Join(errs...)
}

func terminateAgents(ctx context.Context, p *kubernetes.Provisioner, nodes []pipeline.Node) error {
	var errs []error

	for _, node := range nodes {
		spinner := ui.NewSpinner(fmt.Sprintf("Terminating agent %s", node.Name()))

		terminateCtx, cancel := context.WithTimeout(ctx, terminationTimeout)
		err := p.Terminate(terminateCtx, node)
		cancel()

		if err != nil {
			spinner.Fail(err.Error())
			errs = append(errs, err)
		} else {
			spinner.Success(fmt.Sprintf("Agent %s terminated", node.Name()))
		}
	}

	return errors.Join(errs...)
}
