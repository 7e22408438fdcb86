package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ipxe/people-mareo-ipxe/pkg/elfinfo"
)

func newReportCmd(g *globals) *cobra.Command {
	var (
		target string
		kind   string
	)

	cmd := &cobra.Command{
		Use:   "report [commit]",
		Short: "Show artifact sizes of an analysed commit",
		Long:  "Show artifact sizes of an analysed commit. Without a commit, the most recent one is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := g.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			rev := ""
			if len(args) == 1 {
				rev = args[0]
			}
			ctx := cmd.Context()
			c, err := resolveCommit(ctx, st, rev)
			if err != nil {
				return err
			}
			arts, err := st.Artifacts(ctx, c.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "commit %s\n%s  %s\n\n", c.Hash, c.Time.Format("2006-01-02 15:04:05"), c.Title)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "ARTIFACT\tKIND\tTOTAL\tTEXT\tDATA\tBSS\t")
			var sum elfinfo.Sizes
			for _, a := range arts {
				if target != "" && a.Target != target {
					continue
				}
				if kind != "" && a.Kind.String() != kind {
					continue
				}
				sz, err := st.ArtifactSizes(ctx, a.ID)
				if err != nil {
					return err
				}
				sum.Total += sz.Total
				sum.Text += sz.Text
				sum.Data += sz.Data
				sum.BSS += sz.BSS
				fmt.Fprintf(tw, "%s/%s\t%s\t%d\t%d\t%d\t%d\t\n", a.Target, a.Name, a.Kind, sz.Total, sz.Text, sz.Data, sz.BSS)
			}
			fmt.Fprintf(tw, "total\t\t%d\t%d\t%d\t%d\t\n", sum.Total, sum.Text, sum.Data, sum.BSS)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "only show artifacts of this target")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "only show artifacts of this kind (executable, object, debug)")
	return cmd
}
