package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"code.vaulink.org/golang/internal/algos"
	"code.vaulink.org/golang/internal/testpki"
	"code.vaulink.org/golang/pkg/gateway"
	"code.vaulink.org/golang/pkg/trust"
)

func newPKICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pki",
		Short: "Test PKI management",
	}

	var outDir, curve string
	var validity time.Duration
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a test PKI with its gateway lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := generatePKI(outDir, curve, validity)
			if nil != err {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "test PKI written to %s\n", outDir)
			return nil
		},
	}
	generate.Flags().StringVar(&outDir, "out", ".", "Output directory")
	generate.Flags().DurationVar(&validity, "validity", 365*24*time.Hour, "Certificates validity")
	generate.Flags().StringVar(&curve, "curve", algos.CURVE_P256, "Certificate keys curve")
	cmd.AddCommand(generate)

	return cmd
}

// generatePKI writes the gateway lists, the channel key & the anchor of a new test PKI in dir.
func generatePKI(dir string, curveName string, validity time.Duration) error {
	curve, err := algos.GetCurve(curveName)
	if nil != err {
		return wrapError(err, "invalid --curve")
	}
	if nil == curve.Elliptic() {
		return newError("curve %s can not sign certificates", curveName)
	}
	pki, err := testpki.New(testpki.Options{Validity: validity, Curve: curve.Elliptic()})
	if nil != err {
		return wrapError(err, "failed generating PKI")
	}

	certs, err := (&trust.CertList{AddRoots: pki.AddRoots(), CACerts: pki.CACerts(), EECerts: pki.EECerts()}).Marshal()
	if nil != err {
		return err
	}
	responses, err := pki.GoodResponses()
	if nil != err {
		return wrapError(err, "failed generating OCSP responses")
	}
	ocspList, err := (&trust.OCSPList{Responses: responses}).Marshal()
	if nil != err {
		return err
	}
	keyPEM, err := trust.EncodeKeyPEM(pki.Leaf.Key)
	if nil != err {
		return err
	}

	err = os.MkdirAll(dir, 0o700)
	if nil != err {
		return wrapError(err, "failed creating %s", dir)
	}
	files := []struct {
		name string
		data []byte
	}{
		{name: gateway.CertListFile, data: certs},
		{name: gateway.OCSPListFile, data: ocspList},
		{name: gateway.ChannelKeyFile, data: keyPEM},
		{name: gateway.AnchorFile, data: trust.EncodeAnchorPEM(pki.Anchor.Cert)},
	}
	for _, f := range files {
		err = os.WriteFile(filepath.Join(dir, f.name), f.data, 0o600)
		if nil != err {
			return wrapError(err, "failed writing %s", f.name)
		}
	}

	return nil
}
