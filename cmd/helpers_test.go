package cmd

import (
	"bytes"
	"crypto/x509"
	"net"
	"strconv"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/xenos76/certpeek/internal/anchors"
)

// resetRootCmd restores flag values and viper state once the test ends,
// since rootCmd is shared by every test in the package.
func resetRootCmd(t *testing.T) {
	t.Helper()

	t.Cleanup(func() {
		reset := func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}

		rootCmd.Flags().VisitAll(reset)
		rootCmd.PersistentFlags().VisitAll(reset)

		cfgFile = ""
		showSampleConfig = false

		viper.Reset()
	})
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	resetRootCmd(t)

	var stdout, stderr bytes.Buffer

	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()

	return stdout.String(), stderr.String(), err
}

func withAnchors(t *testing.T, certs ...*x509.Certificate) {
	t.Helper()

	set, err := anchors.FromCertificates(certs...)
	require.NoError(t, err)

	old := loadAnchors
	loadAnchors = func() *anchors.Set { return set }

	t.Cleanup(func() {
		loadAnchors = old
	})
}

func splitAddr(t *testing.T, addr string) (string, string) {
	t.Helper()

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	_, err = strconv.Atoi(port)
	require.NoError(t, err)

	return host, port
}
