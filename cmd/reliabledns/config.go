package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	rdns "github.com/folbricht/reliabledns"
)

type config struct {
	MaxSteps            int    `toml:"max-steps"`
	Mode                string `toml:"mode"`
	IPVersion           string `toml:"ip-version"`
	Dnssec              bool   `toml:"dnssec"`
	DisableResultFilter bool   `toml:"disable-result-filter"`
	LogLevel            string `toml:"log-level"`
	Servers             []string
	Syslog              syslogConfig
}

type syslogConfig struct {
	Network string
	Address string
	Tag     string
}

// Reads a config file and returns the decoded structure.
func loadConfig(name string) (config, error) {
	var c config
	_, err := toml.DecodeFile(name, &c)
	return c, err
}

func parseMode(s string) (rdns.Mode, error) {
	switch s {
	case "", "both":
		return rdns.ModeBoth, nil
	case "recursive-only":
		return rdns.ModeRecursiveOnly, nil
	case "iterative-only":
		return rdns.ModeIterativeOnly, nil
	default:
		return 0, fmt.Errorf("unsupported mode '%s'", s)
	}
}

func parseIPVersion(s string) (rdns.IPVersion, error) {
	switch s {
	case "", "v4v6":
		return rdns.IPv4v6, nil
	case "v6v4":
		return rdns.IPv6v4, nil
	case "v4only":
		return rdns.IPv4Only, nil
	case "v6only":
		return rdns.IPv6Only, nil
	default:
		return 0, fmt.Errorf("unsupported ip-version '%s'", s)
	}
}
