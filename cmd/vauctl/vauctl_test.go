package main

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"code.vaulink.org/golang/pkg/gateway"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	t.Logf("vauctl %s:\n%s", strings.Join(args, " "), out.String())
	return out.String(), err
}

func TestPKIGenerateCheck(t *testing.T) {
	dir := t.TempDir()
	_, err := runCmd(t, "pki", "generate", "--out", dir)
	if nil != err {
		t.Fatalf("Failed pki generate, got error %v", err)
	}

	out, err := runCmd(t, "truststore", "check",
		"--anchor", filepath.Join(dir, gateway.AnchorFile),
		"--certs", filepath.Join(dir, gateway.CertListFile),
		"--ocsp", filepath.Join(dir, gateway.OCSPListFile),
		"--min-idp", "1",
	)
	if nil != err {
		t.Fatalf("Failed truststore check, got error %v", err)
	}
	for _, expected := range []string{"Trusted store", "vau.ti-dienste.de", "idp.ti-dienste.de", "good"} {
		if !strings.Contains(out, expected) {
			t.Errorf("report does not contain %q", expected)
		}
	}

	// the anchor must match the lists
	other := t.TempDir()
	if _, err = runCmd(t, "pki", "generate", "--out", other); nil != err {
		t.Fatalf("Failed pki generate, got error %v", err)
	}
	_, err = runCmd(t, "truststore", "check",
		"--anchor", filepath.Join(other, gateway.AnchorFile),
		"--certs", filepath.Join(dir, gateway.CertListFile),
		"--ocsp", filepath.Join(dir, gateway.OCSPListFile),
	)
	if nil == err {
		t.Error("lists accepted with a foreign anchor")
	}
}

func TestTrustStoreRefresh(t *testing.T) {
	dir := t.TempDir()
	if _, err := runCmd(t, "pki", "generate", "--out", dir); nil != err {
		t.Fatalf("Failed pki generate, got error %v", err)
	}
	cfg, err := gateway.LoadDir(dir, echoBackend())
	if nil != err {
		t.Fatalf("Failed LoadDir, got error %v", err)
	}
	gw, err := gateway.New(cfg)
	if nil != err {
		t.Fatalf("Failed gateway.New, got error %v", err)
	}
	srv := httptest.NewServer(gw)
	defer srv.Close()

	out, err := runCmd(t, "truststore", "refresh",
		"--anchor", filepath.Join(dir, gateway.AnchorFile),
		"--gateway", srv.URL,
		"--db", filepath.Join(dir, "lists.db"),
	)
	if nil != err {
		t.Fatalf("Failed truststore refresh, got error %v", err)
	}
	if !strings.Contains(out, "fetches:") {
		t.Errorf("missing cache stats in report")
	}

	_, err = runCmd(t, "truststore", "refresh",
		"--anchor", filepath.Join(dir, gateway.AnchorFile),
		"--gateway", srv.URL,
		"--db", filepath.Join(dir, "lists.db"),
		"--dsn", "host=localhost",
	)
	if nil == err {
		t.Error("--db & --dsn accepted together")
	}

	// an unreachable postgres list store degrades to remote fetches
	out, err = runCmd(t, "truststore", "refresh",
		"--anchor", filepath.Join(dir, gateway.AnchorFile),
		"--gateway", srv.URL,
		"--dsn", "postgres://vaulink@127.0.0.1:1/vaudb?connect_timeout=1",
	)
	if nil != err {
		t.Fatalf("Failed truststore refresh with --dsn, got error %v", err)
	}
	if !strings.Contains(out, "fetches:") {
		t.Errorf("missing cache stats in report")
	}
}

func TestAPDUWrapUnwrap(t *testing.T) {
	keys := []string{"--kenc", "68406B4162100563D9C901A6154D2901", "--kmac", "73FF268784F72AF833FDC9464049AFC9"}

	out, err := runCmd(t, append([]string{"apdu", "wrap", "01020304"}, keys...)...)
	if nil != err {
		t.Fatalf("Failed apdu wrap, got error %v", err)
	}
	if !strings.Contains(out, "0D0203040A8E08D92B4FDDC2BBED8C00") {
		t.Errorf("failed wrap control")
	}

	in := "871101496c26d36306679609665a385c54db37990290008E08B7E9ED2A0C89FB3A9000"
	out, err = runCmd(t, append([]string{"apdu", "unwrap", in}, keys...)...)
	if nil != err {
		t.Fatalf("Failed apdu unwrap, got error %v", err)
	}
	if !strings.Contains(out, "05060708090A") || !strings.Contains(out, "9000") {
		t.Errorf("failed unwrap control")
	}

	// the response was protected with SSC 1
	_, err = runCmd(t, append([]string{"apdu", "unwrap", in, "--ssc", "5"}, keys...)...)
	if nil == err {
		t.Error("unwrap succeeded with a wrong SSC")
	}

	_, err = runCmd(t, "apdu", "wrap", "01020304", "--kenc", "00")
	if nil == err {
		t.Error("wrap succeeded with invalid keys")
	}
}

func TestLogFormat(t *testing.T) {
	_, err := runCmd(t, "--log-format", "json", "pki", "generate", "--out", t.TempDir())
	if nil != err {
		t.Fatalf("Failed pki generate, got error %v", err)
	}
	_, err = runCmd(t, "--log-format", "xml", "pki", "generate", "--out", t.TempDir())
	if !errors.Is(err, Error) {
		t.Errorf("invalid log format accepted, got error %v", err)
	}
}

func TestPKIGenerateCurve(t *testing.T) {
	dir := t.TempDir()
	_, err := runCmd(t, "pki", "generate", "--out", dir, "--curve", "P384")
	if nil != err {
		t.Fatalf("Failed pki generate, got error %v", err)
	}
	out, err := runCmd(t, "truststore", "check",
		"--anchor", filepath.Join(dir, gateway.AnchorFile),
		"--certs", filepath.Join(dir, gateway.CertListFile),
		"--ocsp", filepath.Join(dir, gateway.OCSPListFile),
	)
	if nil != err {
		t.Fatalf("Failed truststore check, got error %v", err)
	}
	if !strings.Contains(out, "P-384") {
		t.Errorf("channel key curve not reported, got %q", out)
	}

	for _, curve := range []string{"X25519", "P999"} {
		_, err = runCmd(t, "pki", "generate", "--out", t.TempDir(), "--curve", curve)
		if !errors.Is(err, Error) {
			t.Errorf("curve %s accepted, got error %v", curve, err)
		}
	}
}

func TestAlgos(t *testing.T) {
	out, err := runCmd(t, "algos")
	if nil != err {
		t.Fatalf("Failed algos, got error %v", err)
	}
	for _, expected := range []string{"P256", "X25519", "SHA256", "2.16.840.1.101.3.4.2.1"} {
		if !strings.Contains(out, expected) {
			t.Errorf("algos output misses %s", expected)
		}
	}
}
