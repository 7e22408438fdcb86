package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ipxe/people-mareo-ipxe/pkg/report"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var (
		list   bool
		deltas bool
	)

	cmd := &cobra.Command{
		Use:   "history <target> <name>",
		Short: "Show the size of one artifact across analysed commits",
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := g.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if list {
				names, err := st.ArtifactNames(ctx)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintf(out, "%s %s\n", n[0], n[1])
				}
				return nil
			}

			h, err := report.BuildHistory(ctx, st, args[0], args[1])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			if deltas {
				fmt.Fprintln(tw, "COMMIT\tTOTAL\tTEXT\tDATA\tBSS\tTITLE")
				for _, d := range h.Deltas() {
					fmt.Fprintf(tw, "%.8s\t%+d\t%+d\t%+d\t%+d\t%s\n", d.Hash, d.Total, d.Text, d.Data, d.BSS, d.Title)
				}
				return tw.Flush()
			}
			fmt.Fprintln(tw, "COMMIT\tDATE\tTOTAL\tTEXT\tDATA\tBSS\tTITLE")
			for _, p := range h.Points {
				fmt.Fprintf(tw, "%.8s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					p.Hash, p.Time.Format("2006-01-02"), p.Sizes.Total, p.Sizes.Text, p.Sizes.Data, p.Sizes.BSS, p.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list the artifacts that have a history")
	cmd.Flags().BoolVarP(&deltas, "deltas", "d", false, "only show commits that changed the size")
	return cmd
}
