// Package forwarder implements the stateless request-to-response pipeline:
// decode → pick upstream group → look up (or build) its client → resolve →
// patch the request ID into the upstream's response bytes. One Forwarder is
// built per process and shared by every listener.
package forwarder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/routewarden/routewarden/internal/rules"
	"github.com/routewarden/routewarden/internal/upstream"
	"github.com/routewarden/routewarden/internal/wire"
)

// Metrics is the narrow interface the forwarder reports query outcomes
// through; internal/metrics implements it with Prometheus collectors.
type Metrics interface {
	ObserveQuery(group, outcome string, duration time.Duration)
}

// StatsStore is the narrow interface the forwarder reports per-query
// counters through; internal/statsstore implements it over sqlite.
type StatsStore interface {
	RecordQuery(group, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveQuery(string, string, time.Duration) {}

type noopStats struct{}

func (noopStats) RecordQuery(string, string) {}

// GroupConfig is the configuration the forwarder needs to lazily build an
// upstream.Client the first time a rule selects that group.
type GroupConfig struct {
	Group            upstream.Group
	ExcludedUDPPorts []int
}

// Forwarder is the stateless glue between the wire codec, rule engine, and
// upstream clients. Its only mutable state is the client cache, an
// insertion-only map protected by a single mutex. Every lookup takes that
// mutex, including lookups of an already-cached client.
type Forwarder struct {
	logger  *slog.Logger
	engine  *rules.Engine
	groups  map[string]GroupConfig
	metrics Metrics
	stats   StatsStore

	clientsMu sync.Mutex
	clients   map[string]*upstream.Client

	requestTimeout time.Duration
}

// New constructs a Forwarder. groups maps upstream group name to the
// configuration used to build its client on first use. metrics/stats may be
// nil, in which case query outcomes are simply not reported.
func New(logger *slog.Logger, engine *rules.Engine, groups map[string]GroupConfig, metrics Metrics, stats StatsStore) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if stats == nil {
		stats = noopStats{}
	}
	return &Forwarder{
		logger:         logger,
		engine:         engine,
		groups:         groups,
		metrics:        metrics,
		stats:          stats,
		clients:        make(map[string]*upstream.Client),
		requestTimeout: 15 * time.Second,
	}
}

// Forward implements the six-step pipeline: decode, route, look up/build
// client, resolve, patch the request ID into the upstream's verbatim
// response. It never returns an error to the listener —
// every failure mode is translated into a synthetic DNS response — except
// when even the header cannot be salvaged from malformed input, in which
// case it returns nil and the caller must drop the datagram/request.
func (f *Forwarder) Forward(ctx context.Context, reqBytes []byte) []byte {
	start := time.Now()
	correlationID := uuid.NewString()

	req, err := wire.ParseRequestBounded(reqBytes)
	if err != nil {
		resp := tryBuildErrorFromRaw(reqBytes, wire.RCodeFormErr)
		f.logOutcome(correlationID, "<unparsed>", "<none>", "formerr", start)
		return resp
	}

	qname := strings.ToLower(req.Questions[0].Name)

	groupName, err := f.engine.PickUpstream(qname)
	if err != nil {
		f.logOutcome(correlationID, qname, "<none>", "no-rule-match", start)
		return f.marshalOr(wire.BuildErrorResponse(req, wire.RCodeServFail))
	}

	client, err := f.clientFor(groupName)
	if err != nil {
		f.logger.Error("forwarder: failed to build upstream client", "group", groupName, "error", err)
		f.logOutcome(correlationID, qname, groupName, "client-build-error", start)
		return f.marshalOr(wire.BuildErrorResponse(req, wire.RCodeServFail))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, f.requestTimeout)
	defer cancel()

	_, raw, err := client.Resolve(attemptCtx, req, reqBytes)
	if err != nil {
		f.logger.Warn("forwarder: upstream resolve failed", "group", groupName, "qname", qname, "error", err)
		f.logOutcome(correlationID, qname, groupName, "upstream-failure", start)
		f.stats.RecordQuery(groupName, "upstream-failure")
		return f.marshalOr(wire.BuildErrorResponse(req, wire.RCodeServFail))
	}

	// Patch the 2-byte ID in place rather than re-marshaling the parsed
	// packet: a full re-encode expands every owner name and recomputes
	// compression, which can strand a compression pointer embedded in
	// opaque RDATA (e.g. an NXDOMAIN authority-section SOA) that pointed
	// into the upstream's original layout.
	if len(raw) < 2 {
		f.logOutcome(correlationID, qname, groupName, "encode-error", start)
		return f.marshalOr(wire.BuildErrorResponse(req, wire.RCodeServFail))
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	out[0] = byte(req.Header.ID >> 8)
	out[1] = byte(req.Header.ID)

	f.logOutcome(correlationID, qname, groupName, "success", start)
	f.stats.RecordQuery(groupName, "success")
	return out
}

// clientFor returns the cached client for groupName, building and installing
// one on first use. The map read and the build both happen under the one
// mutex, so concurrent first callers for a group build its client only once;
// there is no lock-free read path for clients already in the cache.
func (f *Forwarder) clientFor(groupName string) (*upstream.Client, error) {
	f.clientsMu.Lock()
	defer f.clientsMu.Unlock()

	if c, ok := f.clients[groupName]; ok {
		return c, nil
	}

	cfg, ok := f.groups[groupName]
	if !ok {
		return nil, fmt.Errorf("forwarder: rule references unknown upstream group %q", groupName)
	}
	client, err := upstream.NewClient(cfg.Group, cfg.ExcludedUDPPorts)
	if err != nil {
		return nil, err
	}
	f.clients[groupName] = client
	return client, nil
}

func (f *Forwarder) marshalOr(p wire.Packet) []byte {
	b, err := p.Marshal()
	if err != nil {
		return nil
	}
	return b
}

func (f *Forwarder) logOutcome(correlationID, qname, group, outcome string, start time.Time) {
	elapsed := time.Since(start)
	f.metrics.ObserveQuery(group, outcome, elapsed)
	f.logger.Debug("dns query handled",
		"correlation_id", correlationID,
		"qname", qname,
		"group", group,
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds(),
	)
}

// tryBuildErrorFromRaw salvages the message ID and question (if present)
// from bytes that failed full parsing, so a FormatError response can still
// carry a matching ID rather than being silently dropped.
func tryBuildErrorFromRaw(reqBytes []byte, rcode wire.RCode) []byte {
	off := 0
	h, err := wire.ParseHeader(reqBytes, &off)
	if err != nil {
		return nil
	}

	var questions []wire.Question
	if h.QDCount > 0 {
		q, err := wire.ParseQuestion(reqBytes, &off)
		if err == nil {
			questions = []wire.Question{q}
		}
	}

	p := wire.Packet{Header: wire.Header{ID: h.ID, Flags: h.Flags}, Questions: questions}
	b, err := wire.BuildErrorResponse(p, rcode).Marshal()
	if err != nil {
		return nil
	}
	return b
}
