package main

import (
	"bytes"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"

	"neuralsalvage/pkg/config"
	"neuralsalvage/pkg/pricing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQuoteCommand(t *testing.T) {
	out, err := runCLI(t, "quote", "5MB")
	require.NoError(t, err)
	require.Contains(t, out, "Tier:     Tiny")
	require.Contains(t, out, "Price:    $3.99\n")

	out, err = runCLI(t, "quote", "5MB", "--subscriber")
	require.NoError(t, err)
	require.Contains(t, out, "$3.39 (list $3.99, 15% off)")

	_, err = runCLI(t, "quote", "2GiB")
	require.ErrorIs(t, err, pricing.ErrFileTooLarge)

	_, err = runCLI(t, "quote", "lots")
	require.Error(t, err)
}

func TestMigrateNeedsDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := runCLI(t, "migrate")
	require.EqualError(t, err, "DATABASE_URL is required")
}

func TestBuildTLSConfig(t *testing.T) {
	cfg := &config.Config{Env: "development", TLSSelfSigned: true}
	tlsCfg, certFile, keyFile, err := buildTLSConfig(cfg)
	require.NoError(t, err)
	require.Empty(t, certFile)
	require.Empty(t, keyFile)
	require.Len(t, tlsCfg.Certificates, 1)

	leaf, err := x509.ParseCertificate(tlsCfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	require.Equal(t, []string{"localhost"}, leaf.DNSNames)

	_, _, _, err = buildTLSConfig(&config.Config{Env: "production", TLSSelfSigned: true})
	require.ErrorIs(t, err, errNoCertificates)

	_, _, _, err = buildTLSConfig(&config.Config{TLSCertPEM: "junk", TLSKeyPEM: "junk"})
	require.Error(t, err)
}
