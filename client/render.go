package main

import (
	"fmt"
	"io"

	"github.com/gammadia/kubeagents/cloud"
	"github.com/gammadia/kubeagents/provisioner/kubernetes"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var renderCmd = &cobra.Command{
	Use:   "render TEMPLATE [LABEL]",
	Short: "Render the pod a template would create",
	Args:  cobra.RangeArgs(1, 2),

	RunE: func(cmd *cobra.Command, args []string) error {
		selected, err := selectClouds(lo.Must(cmd.Flags().GetString("cloud")))
		if err != nil {
			return err
		}
		var rawLabel string
		if len(args) > 1 {
			rawLabel = args[1]
		}
		return renderTemplate(cmd.OutOrStdout(), selected[0], args[0], rawLabel)
	},
}

func init() {
	renderCmd.Flags().String("cloud", "", "cloud holding the template (defaults to the first one)")
}

func renderTemplate(w io.Writer, c cloud.Cloud, templateID, rawLabel string) error {
	pod, err := kubernetes.RenderPod(c, templateID, rawLabel)
	if err != nil {
		return err
	}

	pod.APIVersion, pod.Kind = "v1", "Pod"
	out, err := yaml.Marshal(pod)
	if err != nil {
		return fmt.Errorf("failed to marshal pod: %w", err)
	}
	_, err = w.Write(out)
	return err
}
