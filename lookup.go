package rdns

import (
	"os"
	"strings"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// ServerLookupMechanism discovers upstream DNS servers from a
// platform-specific source. Mechanisms are held in a ServerPool sorted by
// ascending priority value, and the first available one to return a
// non-empty server list wins. Results of different mechanisms are never
// merged.
type ServerLookupMechanism interface {
	Name() string
	IsAvailable() bool
	Priority() int
	Servers() ([]string, error)
}

// ResolvConfLookup reads name servers from a resolv.conf(5) style file.
type ResolvConfLookup struct {
	// Path of the file to read. Defaults to /etc/resolv.conf.
	Path string
}

var _ ServerLookupMechanism = ResolvConfLookup{}

func (l ResolvConfLookup) Name() string { return "resolvconf" }

func (l ResolvConfLookup) Priority() int { return 100 }

func (l ResolvConfLookup) IsAvailable() bool {
	_, err := os.Stat(l.path())
	return err == nil
}

func (l ResolvConfLookup) Servers() ([]string, error) {
	config, err := dns.ClientConfigFromFile(l.path())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", l.path())
	}
	return config.Servers, nil
}

func (l ResolvConfLookup) path() string {
	if l.Path == "" {
		return "/etc/resolv.conf"
	}
	return l.Path
}

// EnvLookup reads a comma-separated server list from an environment
// variable. It sorts before ResolvConfLookup so the environment can
// override the platform configuration.
type EnvLookup struct {
	// Name of the environment variable. Defaults to RELIABLEDNS_SERVERS.
	Key string
}

var _ ServerLookupMechanism = EnvLookup{}

func (l EnvLookup) Name() string { return "env" }

func (l EnvLookup) Priority() int { return 50 }

func (l EnvLookup) IsAvailable() bool {
	return os.Getenv(l.key()) != ""
}

func (l EnvLookup) Servers() ([]string, error) {
	var servers []string
	for _, s := range strings.Split(os.Getenv(l.key()), ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	return servers, nil
}

func (l EnvLookup) key() string {
	if l.Key == "" {
		return "RELIABLEDNS_SERVERS"
	}
	return l.Key
}

// StaticLookup returns a fixed list of servers, typically from
// configuration.
type StaticLookup struct {
	Addresses []string

	// Position in the mechanism registry, lower values sort first.
	Rank int
}

var _ ServerLookupMechanism = StaticLookup{}

func (l StaticLookup) Name() string { return "static" }

func (l StaticLookup) Priority() int { return l.Rank }

func (l StaticLookup) IsAvailable() bool { return true }

func (l StaticLookup) Servers() ([]string, error) {
	servers := make([]string, len(l.Addresses))
	copy(servers, l.Addresses)
	return servers, nil
}
