package main

import (
	"crypto/x509"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"golang.org/x/crypto/ocsp"

	"code.vaulink.org/golang/pkg/securemsg"
	"code.vaulink.org/golang/pkg/trust"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)

	// timeNow is overridden in tests.
	timeNow = time.Now
)

func printLabel(w io.Writer, label string, format string, args ...any) {
	labelColor.Fprintf(w, "  %-14s ", label+":")
	fmt.Fprintf(w, format+"\n", args...)
}

// printStore writes a human readable report of store.
func printStore(w io.Writer, store *trust.TrustedStore) {
	headerColor.Fprintln(w, "Trusted store")
	printLabel(w, "validated", "%s", store.ValidatedAt().Format(time.RFC3339))
	expires := store.ExpiresAt()
	if store.IsStale(timeNow()) {
		labelColor.Fprintf(w, "  %-14s ", "expires:")
		errorColor.Fprintf(w, "%s (stale)\n", expires.Format(time.RFC3339))
	} else {
		printLabel(w, "expires", "%s (in %s)", expires.Format(time.RFC3339), expires.Sub(timeNow()).Round(time.Minute))
	}

	headerColor.Fprintln(w, "Chain")
	for pos, cert := range store.Chain() {
		printLabel(w, fmt.Sprintf("#%d", pos), "%s", subject(cert))
	}
	printLabel(w, "channel curve", "%v", store.PublicKey().Curve())
	printLabel(w, "channel key", "%X", store.PublicKey().Bytes())

	if idps := store.IdpCertificates(); len(idps) > 0 {
		headerColor.Fprintln(w, "Identity providers")
		for _, cert := range idps {
			printLabel(w, "idp", "%s", subject(cert))
		}
	}

	headerColor.Fprintln(w, "Revocation evidence")
	for _, ev := range store.Evidence() {
		labelColor.Fprintf(w, "  %-14s ", ocspStatus(ev.Response.Status)+":")
		fmt.Fprintf(w, "%s ", subject(ev.Certificate))
		dimColor.Fprintf(w, "produced %s\n", ev.Response.ProducedAt.Format(time.RFC3339))
	}
}

// printCacheStats writes the trust.Cache counters.
func printCacheStats(w io.Writer, stats trust.CacheStats) {
	headerColor.Fprintln(w, "Cache")
	printLabel(w, "refreshes", "%d", stats.Refreshes)
	printLabel(w, "fetches", "%d", stats.Fetches)
	printLabel(w, "failures", "%d", stats.Failures)
}

func printCommand(w io.Writer, cmd securemsg.CommandAPDU) {
	raw, err := cmd.Bytes()
	if nil != err {
		errorColor.Fprintf(w, "invalid command: %v\n", err)
		return
	}
	headerColor.Fprintln(w, "Command APDU")
	printLabel(w, "header", "%X", cmd.Header())
	printLabel(w, "data", "%X", cmd.Data)
	printLabel(w, "Ne", "%d", cmd.Ne)
	printLabel(w, "raw", "%X", raw)
}

func printResponse(w io.Writer, resp securemsg.ResponseAPDU) {
	headerColor.Fprintln(w, "Response APDU")
	printLabel(w, "data", "%X", resp.Data)
	sw := fmt.Sprintf("%04X", resp.SW())
	labelColor.Fprintf(w, "  %-14s ", "SW:")
	if 0x9000 == resp.SW() {
		successColor.Fprintln(w, sw)
	} else {
		errorColor.Fprintln(w, sw)
	}
}

func subject(cert *x509.Certificate) string {
	return fmt.Sprintf("%s (serial %s)", cert.Subject.CommonName, cert.SerialNumber.Text(16))
}

func ocspStatus(status int) string {
	switch status {
	case ocsp.Good:
		return "good"
	case ocsp.Revoked:
		return "revoked"
	default:
		return "unknown"
	}
}
