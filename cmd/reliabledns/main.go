package main

import (
	"fmt"
	"io"
	"os"

	syslog "github.com/RackSec/srslog"
	rdns "github.com/folbricht/reliabledns"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	configFile string
	cfg        config
}

func main() {
	var opt options
	cmd := &cobra.Command{
		Use:   "reliabledns <name> [type]",
		Short: "DNS resolution engine with DNSSEC fallback",
		Long: `DNS resolution engine with DNSSEC fallback.

Resolves a name either through recursive upstream servers,
by walking the delegation hierarchy iteratively, or both.
With --dnssec, answers are only trusted when the upstream
proves validation, falling back to walking the hierarchy
and validating signatures locally.
`,
		Example: `  reliabledns example.com A
  reliabledns --dnssec --mode iterative-only example.com`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt, args)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&opt.configFile, "config", "c", "", "config file in TOML format")
	cmd.Flags().IntVar(&opt.cfg.MaxSteps, "max-steps", 0, "step budget per iterative resolution")
	cmd.Flags().StringVar(&opt.cfg.Mode, "mode", "", "resolution mode: recursive-only, iterative-only, both")
	cmd.Flags().StringVar(&opt.cfg.IPVersion, "ip-version", "", "address family preference: v4v6, v6v4, v4only, v6only")
	cmd.Flags().BoolVar(&opt.cfg.Dnssec, "dnssec", false, "require DNSSEC validated answers where possible")
	cmd.Flags().BoolVar(&opt.cfg.DisableResultFilter, "no-filter", false, "accept responses regardless of their response code")
	cmd.Flags().StringVar(&opt.cfg.LogLevel, "log-level", "", "log level: debug, info, warn, error (default info)")
	cmd.Flags().StringSliceVar(&opt.cfg.Servers, "server", nil, "upstream server, overrides platform discovery")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opt options, args []string) error {
	cfg := opt.cfg
	if opt.configFile != "" {
		fileCfg, err := loadConfig(opt.configFile)
		if err != nil {
			return err
		}
		cfg = merge(fileCfg, cfg)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	rdns.Log.SetLevel(level)

	if cfg.Syslog.Address != "" {
		network := cfg.Syslog.Network
		if network == "" {
			network = "udp"
		}
		w, err := syslog.Dial(network, cfg.Syslog.Address, syslog.LOG_INFO|syslog.LOG_DAEMON, cfg.Syslog.Tag)
		if err != nil {
			return err
		}
		rdns.Log.SetOutput(io.MultiWriter(os.Stderr, w))
	}

	mode, err := parseMode(cfg.Mode)
	if err != nil {
		return err
	}
	ipv, err := parseIPVersion(cfg.IPVersion)
	if err != nil {
		return err
	}

	pool := rdns.DefaultServerPool()
	if len(cfg.Servers) > 0 {
		pool = rdns.NewServerPool(rdns.StaticLookup{Addresses: cfg.Servers})
	}

	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(args[0]), queryType(args))

	if cfg.Dnssec {
		r := rdns.NewReliableResolver("reliable", rdns.ReliableResolverOptions{
			MaxSteps:  cfg.MaxSteps,
			IPVersion: ipv,
			Pool:      pool,
		})
		result, err := r.ResolveAuthenticated(q)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("no response for '%s'", args[0])
		}
		for _, reason := range result.Reasons {
			fmt.Fprintf(os.Stderr, ";; unverified: %s\n", reason)
		}
		printAnswer(result.Msg)
		return nil
	}

	client := rdns.NewClient("client", rdns.ClientOptions{
		Mode:                mode,
		MaxSteps:            cfg.MaxSteps,
		DisableResultFilter: cfg.DisableResultFilter,
		IPVersion:           ipv,
		Pool:                pool,
		Cache:               rdns.NewMemoryCache(1024),
	})
	a, err := client.Resolve(q)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("no response for '%s'", args[0])
	}
	printAnswer(a)
	return nil
}

// Flag values take precedence over values from the config file.
func merge(file, flags config) config {
	cfg := file
	if flags.MaxSteps != 0 {
		cfg.MaxSteps = flags.MaxSteps
	}
	if flags.Mode != "" {
		cfg.Mode = flags.Mode
	}
	if flags.IPVersion != "" {
		cfg.IPVersion = flags.IPVersion
	}
	if flags.Dnssec {
		cfg.Dnssec = true
	}
	if flags.DisableResultFilter {
		cfg.DisableResultFilter = true
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	if len(flags.Servers) > 0 {
		cfg.Servers = flags.Servers
	}
	return cfg
}

func queryType(args []string) uint16 {
	if len(args) < 2 {
		return dns.TypeA
	}
	if t, ok := dns.StringToType[args[1]]; ok {
		return t
	}
	return dns.TypeA
}

func printAnswer(a *dns.Msg) {
	fmt.Printf(";; rcode: %s, answers: %d\n", dns.RcodeToString[a.Rcode], len(a.Answer))
	for _, rr := range a.Answer {
		fmt.Println(rr)
	}
}
