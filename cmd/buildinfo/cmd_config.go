package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ipxe/people-mareo-ipxe/pkg/settings"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit #define/#undef configuration headers",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigEditCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "show <header>",
		Short: "List the settings of a header, grouped by their comment blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := settings.Load(args[0])
			if err != nil {
				return err
			}
			printDocument(cmd.OutOrStdout(), doc, activeOnly)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&activeOnly, "active", "a", false, "only list active settings")
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <header> <name>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := settings.Load(args[0])
			if err != nil {
				return err
			}
			s := doc.Lookup(args[1])
			if s == nil {
				return fmt.Errorf("%s: no setting named %q", args[0], args[1])
			}
			state := "inactive"
			if s.Active {
				state = "active"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", s.Name, state, s.Value, s.Comment)
			return nil
		},
	}
}

func newConfigEditCmd() *cobra.Command {
	var (
		sets   []string
		unsets []string
	)

	cmd := &cobra.Command{
		Use:   "edit <header>",
		Short: "Stage edits and print them as a sparse patch",
		Long: "Stage edits to a configuration header and print one tab-separated line per changed\n" +
			"setting. The header itself is not modified.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(sets) == 0 && len(unsets) == 0 {
				return fmt.Errorf("nothing to edit; use --set or --unset")
			}
			doc, err := settings.Load(args[0])
			if err != nil {
				return err
			}
			if err := applyEdits(doc, sets, unsets); err != nil {
				return err
			}
			return doc.EmitChanges(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "define NAME or NAME=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&unsets, "unset", nil, "undefine NAME (repeatable)")
	return cmd
}

func printDocument(w io.Writer, doc *settings.Document, activeOnly bool) {
	for i, g := range doc.Groups() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		for _, line := range g.Header {
			fmt.Fprintf(w, "# %s\n", line)
		}
		for _, s := range g.Settings {
			if activeOnly && !s.Active {
				continue
			}
			mark := " "
			if s.Active {
				mark = "*"
			}
			fmt.Fprintf(w, "%s %s", mark, s.Name)
			if s.Value != "" {
				fmt.Fprintf(w, " = %s", s.Value)
			}
			if s.Comment != "" {
				fmt.Fprintf(w, "  (%s)", strings.TrimSpace(s.Comment))
			}
			fmt.Fprintln(w)
		}
	}
}
