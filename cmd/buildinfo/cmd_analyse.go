package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ipxe/people-mareo-ipxe/pkg/builder"
	"github.com/ipxe/people-mareo-ipxe/pkg/vcs"
	"github.com/ipxe/people-mareo-ipxe/pkg/walker"
)

func newAnalyseCmd(g *globals) *cobra.Command {
	var (
		dryRun  bool
		jobs    int
		targets []string
	)

	cmd := &cobra.Command{
		Use:     "analyse",
		Aliases: []string{"analyze"},
		Short:   "Build and analyse every new upstream commit",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := g.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if cmd.Flags().Changed("jobs") {
				cfg.Analysis.Jobs = jobs
			}
			if len(targets) > 0 {
				cfg.Analysis.Targets = targets
			}

			out := g.buildOutput(cmd)
			git := vcs.New(cfg.Repository.Path, cfg.Repository.Remote, cfg.Repository.Branch)
			git.Stdout, git.Stderr = out, out
			if err := git.EnsureRepository(); err != nil {
				return err
			}
			mk := builder.NewMake(cfg.Repository.Path)
			mk.Stdout, mk.Stderr = out, out

			w := walker.New(git, mk, st, walker.Options{
				Root:    cfg.Repository.Path,
				Targets: cfg.Analysis.Targets,
				Jobs:    cfg.Analysis.Jobs,
				Logger:  g.logger,
				DryRun:  dryRun,
				OnCommit: func(s walker.Summary) {
					if dryRun {
						fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", s.Commit.Short(), s.Commit.Title)
						return
					}
					state := "new"
					if !s.Created {
						state = "replaced"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %-8s %3d artifact(s), %d skipped  %s\n",
						s.Commit.Short(), state, s.Artifacts, s.Skipped, s.Commit.Title)
				},
			})
			sums, err := w.Run(cmd.Context())
			if err != nil {
				return err
			}
			if len(sums) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "up to date")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the commits that would be analysed")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "parallel make jobs (default analysis.jobs)")
	cmd.Flags().StringSliceVarP(&targets, "target", "t", nil, "build output directories to collect (default analysis.targets)")
	return cmd
}
