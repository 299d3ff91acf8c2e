package cmd

import (
	"time"
)

const defaultConcurrency = 4

// TargetConfig is one entry of the targets list in the configuration file.
// Zero values fall back to the top level settings.
type TargetConfig struct {
	Host          string `mapstructure:"host"`
	IP            string `mapstructure:"ip"`
	Port          int    `mapstructure:"port"`
	ProxyProtocol bool   `mapstructure:"proxyProtocol"`
}

type CertpeekConfig struct {
	Debug         bool           `mapstructure:"debug"`
	Output        string         `mapstructure:"output"`
	IP            string         `mapstructure:"ip"`
	Port          int            `mapstructure:"port"`
	Timeout       time.Duration  `mapstructure:"timeout"`
	Insecure      bool           `mapstructure:"insecure"`
	ProxyProtocol bool           `mapstructure:"proxyProtocol"`
	Concurrency   int            `mapstructure:"concurrency"`
	WarnDays      int            `mapstructure:"warnDays"`
	Targets       []TargetConfig `mapstructure:"targets"`
}

func NewCertpeekConfig() *CertpeekConfig {
	c := CertpeekConfig{}
	return &c
}

// targetsFor returns what to inspect: the host given on the command line,
// or the configured targets when there is none.
func (c *CertpeekConfig) targetsFor(args []string) []TargetConfig {
	if len(args) > 0 {
		return []TargetConfig{{
			Host:          args[0],
			IP:            c.IP,
			Port:          c.Port,
			ProxyProtocol: c.ProxyProtocol,
		}}
	}

	targets := make([]TargetConfig, 0, len(c.Targets))
	for _, t := range c.Targets {
		if t.Port == 0 {
			t.Port = c.Port
		}

		t.ProxyProtocol = t.ProxyProtocol || c.ProxyProtocol
		targets = append(targets, t)
	}

	return targets
}
