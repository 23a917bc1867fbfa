package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/gammadia/kubeagents/client/ui"
	"github.com/gammadia/kubeagents/cloud"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the pod templates of every cloud",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		selected, err := selectClouds(lo.Must(cmd.Flags().GetString("cloud")))
		if err != nil {
			return err
		}
		return printTemplates(cmd.OutOrStdout(), selected)
	},
}

func init() {
	templatesCmd.Flags().String("cloud", "", "only list the templates of this cloud")
}

func printTemplates(w io.Writer, selected []cloud.Cloud) error {
	for i, c := range selected {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, ui.SectionHeaderColor.Sprintf("  %s  ", c.DisplayName))
		fmt.Fprintln(w, ui.DimColor.Sprint(c.String()))

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tLABELS\tDESCRIPTION")
		for _, t := range c.Templates {
			labels := lo.Ternary(t.LabelSet().IsEmpty(), "<any>", t.LabelSet().String())
			fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, labels, t.Description)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
