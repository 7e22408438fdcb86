package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ipxe/people-mareo-ipxe/pkg/elfinfo"
)

func newCategoriesCmd(g *globals) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "categories [commit]",
		Short: "Break an analysed commit down into protocols, drivers and images",
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
			cats, err := st.CommitCategories(ctx, c.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "commit %s  %s\n\n", c.Short(), c.Title)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tOBJECTS\tTEXT\tDATA\tBSS")
			for _, cat := range elfinfo.Categories {
				var (
					n  int
					sz elfinfo.Sizes
				)
				for _, a := range cats[cat] {
					if a.Kind != elfinfo.KindObject {
						continue
					}
					n++
					s := a.Artifact.Sizes()
					sz.Text += s.Text
					sz.Data += s.Data
					sz.BSS += s.BSS
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", cat, n, sz.Text, sz.Data, sz.BSS)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if !list {
				return nil
			}
			for _, cat := range elfinfo.Categories {
				fmt.Fprintf(out, "\n%s:\n", cat)
				for _, a := range cats[cat] {
					if a.Kind == elfinfo.KindObject {
						fmt.Fprintf(out, "  %s/%s\n", a.Target, a.Name)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list the objects in each category")
	return cmd
}
