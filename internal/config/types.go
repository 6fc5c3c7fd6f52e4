// Package config loads the JSON configuration document this process reads
// at startup: proxy servers, upstream DNS server groups, and the ordered
// rule table routing queries to them. Hot-reload and a remote config source
// are explicitly out of scope; a plain one-shot encoding/json decode against
// a fixed schema is all this process needs.
package config

// ProxyServer describes one entry of SmartDnsConfig.proxyServers.
type ProxyServer struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	ProxyAddress  string `json:"proxyAddress"`
	ProxyPort     int    `json:"proxyPort"`
	ProxyUsername string `json:"proxyUsername"`
	ProxyPassword string `json:"proxyPassword"`
}

// DNSServer describes one entry of SmartDnsConfig.dnsServers: a named
// upstream group reachable over one transport, optionally via a proxy.
type DNSServer struct {
	Name               string   `json:"name"`
	Proxy              string   `json:"proxy"`
	DNSSECValidation   bool     `json:"dnssecValidation"`
	ForwarderProtocol  string   `json:"forwarderProtocol"`
	ForwarderAddresses []string `json:"forwarderAddresses"`
}

// Rule describes one entry of SmartDnsConfig.rules.
type Rule struct {
	Domain    []string `json:"domain"`
	DNSServer string   `json:"dnsServer"`
}

// SmartDNSConfig is the payload under the document's "SmartDnsConfig" key.
type SmartDNSConfig struct {
	ProxyServers []ProxyServer `json:"proxyServers"`
	DNSServers   []DNSServer   `json:"dnsServers"`
	Rules        []Rule        `json:"rules"`
}

// Document is the root JSON object read from appsettings.json.
type Document struct {
	SmartDNSConfig SmartDNSConfig `json:"SmartDnsConfig"`
}

// ListenConfig holds process-level defaults that have no place in the
// SmartDnsConfig schema itself: bind addresses, retry/timeout policy, and
// the UDP socket pool's size and port-exclusion list.
type ListenConfig struct {
	UDPAddr          string
	DoHAddr          string
	AdminAddr        string
	Retries          int
	UDPTimeoutMillis int
	OtherTimeout     int // seconds
	UDPPoolSize      int
	ExcludedUDPPorts []int
}

// DefaultListenConfig returns the process defaults spec.md's Design Notes
// call for: retries=5, 2000ms UDP / 10s TCP-TLS-HTTPS per-attempt timeout,
// a 2500-socket UDP pool, no excluded ports.
func DefaultListenConfig() ListenConfig {
	return ListenConfig{
		UDPAddr:          ":5383",
		DoHAddr:          ":8125",
		AdminAddr:        ":8125",
		Retries:          5,
		UDPTimeoutMillis: 2000,
		OtherTimeout:     10,
		UDPPoolSize:      2500,
	}
}
