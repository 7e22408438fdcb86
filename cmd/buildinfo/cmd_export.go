package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ipxe/people-mareo-ipxe/pkg/report"
)

func newExportCmd(g *globals) *cobra.Command {
	var (
		output  string
		sign    bool
		keyPath string
	)

	cmd := &cobra.Command{
		Use:   "export <target> <name>",
		Short: "Write the size history of an artifact as compressed JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := g.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			h, err := report.BuildHistory(cmd.Context(), st, args[0], args[1])
			if err != nil {
				return err
			}
			if strings.TrimSpace(output) == "" {
				output = args[1] + ".history.json.zst"
			}
			if err := report.WriteFile(output, h); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d commits)\n", output, len(h.Points))

			if !sign && keyPath == "" {
				return nil
			}
			sigPath, err := report.SignFile(keyPath, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed %s\n", sigPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <name>.history.json.zst)")
	cmd.Flags().BoolVar(&sign, "sign", false, "sign the export with the default SSH key")
	cmd.Flags().StringVar(&keyPath, "key", "", "SSH private key to sign with (implies --sign)")
	return cmd
}
