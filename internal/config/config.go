package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and validates the configuration document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &doc, nil
}

// Validate checks the document for the minimum shape the rest of the
// process depends on: every dns server must be named and reachable, every
// rule must name a pattern list and a target.
func (d *Document) Validate() error {
	names := make(map[string]bool, len(d.SmartDNSConfig.DNSServers))
	for _, s := range d.SmartDNSConfig.DNSServers {
		if s.Name == "" {
			return fmt.Errorf("dnsServers entry missing name")
		}
		if len(s.ForwarderAddresses) == 0 {
			return fmt.Errorf("dnsServers entry %q has no forwarderAddresses", s.Name)
		}
		switch s.ForwarderProtocol {
		case "Udp", "Tcp", "Tls", "Https":
		default:
			return fmt.Errorf("dnsServers entry %q has unrecognized forwarderProtocol %q", s.Name, s.ForwarderProtocol)
		}
		names[s.Name] = true
	}

	proxies := make(map[string]bool, len(d.SmartDNSConfig.ProxyServers))
	for _, p := range d.SmartDNSConfig.ProxyServers {
		if p.Name == "" {
			return fmt.Errorf("proxyServers entry missing name")
		}
		proxies[p.Name] = true
	}

	for _, s := range d.SmartDNSConfig.DNSServers {
		if s.Proxy != "" && !proxies[s.Proxy] {
			return fmt.Errorf("dnsServers entry %q references unknown proxy %q", s.Name, s.Proxy)
		}
	}

	for i, r := range d.SmartDNSConfig.Rules {
		if len(r.Domain) == 0 {
			return fmt.Errorf("rules[%d] has an empty domain pattern list", i)
		}
		if r.DNSServer == "" {
			return fmt.Errorf("rules[%d] missing dnsServer", i)
		}
		if !names[r.DNSServer] {
			return fmt.Errorf("rules[%d] references unknown dnsServer %q", i, r.DNSServer)
		}
	}
	return nil
}
