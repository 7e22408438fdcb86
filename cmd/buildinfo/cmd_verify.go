package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/ipxe/people-mareo-ipxe/pkg/report"
)

func newVerifyCmd(g *globals) *cobra.Command {
	var pubKeyPath string

	cmd := &cobra.Command{
		Use:   "verify <export>",
		Short: "Verify the signature and contents of a history export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			var trusted ssh.PublicKey
			if pubKeyPath != "" {
				k, err := report.LoadAuthorizedKey(pubKeyPath)
				if err != nil {
					return err
				}
				trusted = k
			}
			signer, err := report.VerifySignature(path, trusted)
			if err != nil {
				return err
			}
			h, err := report.ReadFile(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s/%s, %d commit(s), signed by %s\n",
				h.Target, h.Name, len(h.Points), ssh.FingerprintSHA256(signer))
			return nil
		},
	}
	cmd.Flags().StringVar(&pubKeyPath, "key", "", "require the signature to be made by this public key")
	return cmd
}
