// Command routewarden is the policy-routed DNS forwarder process: it loads
// a JSON configuration and a geosite database, builds the rule engine and
// upstream client pool, and serves UDP and DoH listeners until signalled to
// stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "go.uber.org/automaxprocs"

	"github.com/routewarden/routewarden/internal/adminapi"
	"github.com/routewarden/routewarden/internal/config"
	"github.com/routewarden/routewarden/internal/forwarder"
	"github.com/routewarden/routewarden/internal/geosite"
	"github.com/routewarden/routewarden/internal/listener"
	"github.com/routewarden/routewarden/internal/logging"
	"github.com/routewarden/routewarden/internal/metrics"
	"github.com/routewarden/routewarden/internal/rules"
	"github.com/routewarden/routewarden/internal/statsstore"
	"github.com/routewarden/routewarden/internal/upstream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath  string
	geositePath string
	dbPath      string
	udpAddr     string
	adminAddr   string
	jsonLogs    bool
	debug       bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "appsettings.json", "path to the JSON configuration document")
	flag.StringVar(&f.geositePath, "geosite", "geosite.dat", "path to the geosite category database")
	flag.StringVar(&f.dbPath, "db", "routewarden.db", "path to the query-counter SQLite database")
	flag.StringVar(&f.udpAddr, "udp-addr", fmt.Sprintf(":%d", listener.DefaultUDPPort), "UDP listener bind address")
	flag.StringVar(&f.adminAddr, "admin-addr", fmt.Sprintf(":%d", listener.DefaultDoHPort), "admin/DoH HTTP bind address")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "enable debug logging")
	flag.Parse()
	return f
}

func run() error {
	flags := parseFlags()

	logger := logging.Configure(logging.Config{
		Level:            levelFromFlags(flags),
		Structured:       flags.jsonLogs,
		StructuredFormat: "json",
		IncludePID:       true,
	})

	doc, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	geositeData, err := os.ReadFile(flags.geositePath)
	if err != nil {
		return fmt.Errorf("reading geosite database: %w", err)
	}
	geoStore, err := geosite.Load(geositeData, logger)
	if err != nil {
		return fmt.Errorf("parsing geosite database: %w", err)
	}

	engine, groups, err := buildEngineAndGroups(doc, geoStore)
	if err != nil {
		return fmt.Errorf("building rule engine: %w", err)
	}

	statsStore, err := statsstore.Open(flags.dbPath)
	if err != nil {
		return fmt.Errorf("opening stats database: %w", err)
	}
	defer statsStore.Close()

	metricsRegistry := metrics.New()
	fwd := forwarder.New(logger, engine, groups, metricsRegistry, statsStore)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runID := uuid.NewString()
	logger.Info("routewarden starting",
		"run_id", runID,
		"udp_addr", flags.udpAddr,
		"admin_addr", flags.adminAddr,
		"dns_servers", len(doc.SmartDNSConfig.DNSServers),
		"rules", len(doc.SmartDNSConfig.Rules),
	)

	adminSrv := adminapi.New(logger, flags.adminAddr, metricsRegistry.Gatherer(), statsStore)
	listener.RegisterRoutes(adminSrv.Engine(), logger, fwd)

	udpListener := &listener.UDPListener{Logger: logger, Forwarder: fwd}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := udpListener.ListenAndServe(ctx, flags.udpAddr); err != nil {
			errCh <- fmt.Errorf("udp listener: %w", err)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := adminSrv.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("admin/doh listener: %w", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("routewarden stopping", "run_id", runID)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = adminSrv.Shutdown(shutdownCtx)

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func levelFromFlags(f cliFlags) string {
	if f.debug {
		return "DEBUG"
	}
	return "INFO"
}

// buildEngineAndGroups translates the config document into the rule engine
// and the upstream group table the forwarder dispatches against.
func buildEngineAndGroups(doc *config.Document, geoStore *geosite.Store) (*rules.Engine, map[string]forwarder.GroupConfig, error) {
	excludedUDPPorts := config.DefaultListenConfig().ExcludedUDPPorts

	proxies := make(map[string]*upstream.ProxyConfig, len(doc.SmartDNSConfig.ProxyServers))
	for _, p := range doc.SmartDNSConfig.ProxyServers {
		proxies[p.Name] = &upstream.ProxyConfig{
			Name:     p.Name,
			Address:  p.ProxyAddress,
			Port:     p.ProxyPort,
			Username: p.ProxyUsername,
			Password: p.ProxyPassword,
		}
	}

	groups := make(map[string]forwarder.GroupConfig, len(doc.SmartDNSConfig.DNSServers))
	for _, s := range doc.SmartDNSConfig.DNSServers {
		protocol, err := upstream.ParseProtocol(s.ForwarderProtocol)
		if err != nil {
			return nil, nil, fmt.Errorf("dns server %q: %w", s.Name, err)
		}

		endpoints := make([]upstream.Endpoint, 0, len(s.ForwarderAddresses))
		for _, addr := range s.ForwarderAddresses {
			endpoints = append(endpoints, parseEndpoint(addr, protocol))
		}

		var proxy *upstream.ProxyConfig
		if s.Proxy != "" {
			proxy = proxies[s.Proxy]
		}

		groups[s.Name] = forwarder.GroupConfig{
			Group: upstream.Group{
				Name:      s.Name,
				Endpoints: endpoints,
				Transport: protocol,
				DNSSEC:    s.DNSSECValidation,
				Proxy:     proxy,
			},
			ExcludedUDPPorts: excludedUDPPorts,
		}
	}

	raw := make([]rules.RawRule, 0, len(doc.SmartDNSConfig.Rules))
	for _, r := range doc.SmartDNSConfig.Rules {
		raw = append(raw, rules.RawRule{Domain: r.Domain, DNSServer: r.DNSServer})
	}

	engine, err := rules.NewEngine(raw, geoStore)
	if err != nil {
		return nil, nil, err
	}
	return engine, groups, nil
}

// defaultPort returns the conventional port for a transport when a
// forwarderAddresses entry names a bare host.
func defaultPort(p upstream.Protocol) int {
	switch p {
	case upstream.Tls:
		return 853
	case upstream.Https:
		return 443
	default:
		return 53
	}
}

func parseEndpoint(addr string, protocol upstream.Protocol) upstream.Endpoint {
	host, portStr, err := splitHostPort(addr)
	if err != nil {
		return upstream.Endpoint{Host: addr, Port: defaultPort(protocol)}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return upstream.Endpoint{Host: host, Port: defaultPort(protocol)}
	}
	return upstream.Endpoint{Host: host, Port: port}
}

// splitHostPort splits "host:port" without requiring a bracketed IPv6
// literal to carry a port, unlike net.SplitHostPort.
func splitHostPort(addr string) (host, port string, err error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("no port")
	}
	return addr[:idx], addr[idx+1:], nil
}
