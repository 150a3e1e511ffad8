package main

import (
	"github.com/spf13/cobra"

	"code.vaulink.org/golang/internal/algos"
)

func newAlgosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "algos",
		Short: "List the supported curves & CertHash algorithms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()

			headerColor.Fprintln(w, "Curves")
			for _, name := range algos.ListCurves() {
				curve, err := algos.GetCurve(name)
				if nil != err {
					return err
				}
				usage := "channel keys"
				if nil != curve.Elliptic() {
					usage = "channel & certificate keys"
				}
				printLabel(w, name, "%s", usage)
			}

			headerColor.Fprintln(w, "CertHash algorithms")
			for _, name := range algos.ListHashes() {
				hash, err := algos.GetHash(name)
				if nil != err {
					return err
				}
				printLabel(w, name, "%s", hash.OID)
			}
			return nil
		},
	}
}
