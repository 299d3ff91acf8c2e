/*
Copyright © 2025 Zeno Belli xeno@os76.xyz

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package cmd

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xenos76/certpeek/internal/handshake"
	"github.com/xenos76/certpeek/internal/report"
	"github.com/xenos76/certpeek/internal/target"
)

var (
	cfgFile string
	version = "development"

	//go:embed  embedded/config-example.yaml
	sampleYamlConfig string
	showSampleConfig bool
)

var rootCmd = &cobra.Command{
	Use:   "certpeek [host]",
	Short: "Certpeek, a tool to inspect the certificate chain presented by a TLS endpoint",
	Long: `
Certpeek opens a TLS connection to an endpoint and shows every certificate
the peer presents, in the order it was sent.

The address to dial and the name asserted in the handshake are kept apart:
the host argument is always used for SNI and for certificate validation,
while --ip makes certpeek connect somewhere else. This allows to check a
backend behind a load balancer, or a new server before the DNS switch.

Validation uses the Mozilla root store embedded in the binary. With
--insecure the handshake completes for untrusted peers too and the trust
verdict is reported instead.

Several endpoints can be inspected in one run by listing them under
'targets' in the configuration file provided with --config.

Examples:
  certpeek example.com
  certpeek example.com --ip 203.0.113.10 --port 8443
  certpeek www.example.com --ip 2001:db8::10 --output json
  certpeek expired.example.com --insecure
  certpeek --config ./targets.yaml --concurrency 8

Certpeek is distributed with an open source license and available at the following address:
https://github.com/xenOs76/certpeek`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("version") {
			fmt.Fprintln(cmd.OutOrStdout(), version)

			return nil
		}

		if showSampleConfig {
			fmt.Fprint(cmd.OutOrStdout(), sampleYamlConfig)

			return nil
		}

		cfg, err := LoadConfig()
		if err != nil {
			return err
		}

		if len(args) == 0 && len(cfg.Targets) == 0 {
			return cmd.Help()
		}

		return runInspect(cmd, cfg, args)
	},
}

// Execute runs the root command and exits with status 1 when inspection
// fails at any stage.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), diagnostic(err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default is $HOME/.certpeek.yaml)")
	rootCmd.PersistentFlags().Bool("version", false, "Display the version")
	flagBindings = append(flagBindings, flagBinding{name: "version", key: "version"})

	rootCmd.Flags().BoolVar(&showSampleConfig,
		"show-sample-config",
		false,
		"Show a sample YAML configuration")

	addStringFlag(rootCmd, "ip", "ip", "",
		`Address to connect to instead of resolving the host argument.
IPv6 addresses may be given with or without square brackets`)
	addIntFlag(rootCmd, "port", "port", target.DefaultPort, "TCP port to connect to")
	addDurationFlag(rootCmd, "timeout", "timeout", handshake.DefaultTimeout,
		"Overall time allowed for connecting and completing the handshake")
	addStringFlag(rootCmd, "output", "output", string(report.Text),
		"Output format, one of: "+strings.Join(report.Formats(), ", "))
	addBoolFlag(rootCmd, "insecure", "insecure", false,
		`Complete the handshake with untrusted peers and report
the validation failure instead of stopping`)
	addBoolFlag(rootCmd, "proxy-protocol", "proxyProtocol", false,
		"Send a PROXY protocol v2 header before the TLS handshake")
	addBoolFlag(rootCmd, "debug", "debug", false, "Print debug logs and data dumps on stderr")
	addIntFlag(rootCmd, "concurrency", "concurrency", defaultConcurrency,
		"Number of targets from the config file inspected at the same time")
	addIntFlag(rootCmd, "warn-days", "warnDays", report.DefaultExpiryWarnDays,
		"Highlight certificates expiring within this many days")
}

func initConfig() {
	bindFlags(rootCmd)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".certpeek")
	}

	err := viper.ReadInConfig()
	if err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func LoadConfig() (*CertpeekConfig, error) {
	config := NewCertpeekConfig()

	err := viper.Unmarshal(config)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return config, nil
}

// flagBinding ties a command line flag to the viper key it overrides.
type flagBinding struct {
	name string
	key  string
}

var flagBindings []flagBinding

func addStringFlag(cmd *cobra.Command, name, key, value, usage string) {
	cmd.Flags().String(name, value, usage)
	flagBindings = append(flagBindings, flagBinding{name: name, key: key})
}

func addIntFlag(cmd *cobra.Command, name, key string, value int, usage string) {
	cmd.Flags().Int(name, value, usage)
	flagBindings = append(flagBindings, flagBinding{name: name, key: key})
}

func addBoolFlag(cmd *cobra.Command, name, key string, value bool, usage string) {
	cmd.Flags().Bool(name, value, usage)
	flagBindings = append(flagBindings, flagBinding{name: name, key: key})
}

func addDurationFlag(cmd *cobra.Command, name, key string, value time.Duration, usage string) {
	cmd.Flags().Duration(name, value, usage)
	flagBindings = append(flagBindings, flagBinding{name: name, key: key})
}

// bindFlags registers every flag with viper. It runs on each execution
// because viper.Reset drops existing bindings.
func bindFlags(cmd *cobra.Command) {
	for _, b := range flagBindings {
		flag := cmd.Flags().Lookup(b.name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(b.name)
		}

		if err := viper.BindPFlag(b.key, flag); err != nil {
			fmt.Printf("Error binding %s flag: %v\n", b.name, err)
		}
	}
}
