package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ipxe/people-mareo-ipxe/pkg/elfinfo"
)

func newInspectCmd(g *globals) *cobra.Command {
	var (
		asJSON  bool
		symbols bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <file>...",
		Short: "Analyse build outputs without storing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arts := make([]*elfinfo.Artifact, 0, len(args))
			for _, path := range args {
				art, err := elfinfo.Analyze(path, filepath.Base(filepath.Dir(path)))
				if err != nil {
					return err
				}
				arts = append(arts, art)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(arts)
			}
			for i, art := range arts {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printArtifact(out, art, symbols)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVarP(&symbols, "symbols", "s", false, "list retained symbols")
	return cmd
}

func printArtifact(w io.Writer, art *elfinfo.Artifact, symbols bool) {
	sz := art.Sizes()
	fmt.Fprintf(w, "%s/%s (%s, %s)\n", art.Target, art.Name, art.Kind, elfinfo.CategoryOf(art.Sections))
	fmt.Fprintf(w, "total %d  text %d  data %d  bss %d\n", sz.Total, sz.Text, sz.Data, sz.BSS)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTION\tSIZE\tFLAGS")
	for _, s := range art.Sections {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Name, s.Size, sectionFlags(s))
	}
	tw.Flush()

	if !symbols || len(art.Symbols) == 0 {
		return
	}
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSIZE\tROLE")
	for _, s := range art.Symbols {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Name, s.Size, s.Role)
	}
	tw.Flush()
}

func sectionFlags(s elfinfo.Section) string {
	flags := []byte("---")
	if s.ExecInstr {
		flags[0] = 'x'
	}
	if s.Writable {
		flags[1] = 'w'
	}
	if s.ProgBits {
		flags[2] = 'p'
	}
	return string(flags)
}
