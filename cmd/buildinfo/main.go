package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "buildinfo",
		Short:         "Track firmware build size across commits",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config-file", "c", "", "configuration file (default buildinfo.toml)")
	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "results database, overrides store.path")
	root.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", nil, "dotenv files to load (default .env)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log debug output and stream build output")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(g))
	root.AddCommand(newAnalyseCmd(g))
	root.AddCommand(newInspectCmd(g))
	root.AddCommand(newReportCmd(g))
	root.AddCommand(newCategoriesCmd(g))
	root.AddCommand(newHistoryCmd(g))
	root.AddCommand(newExportCmd(g))
	root.AddCommand(newVerifyCmd(g))
	root.AddCommand(newConfigCmd(g))
	root.AddCommand(newBuildCmd(g))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "buildinfo %s\n", version)
		},
	}
}
