package geosite

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/routewarden/routewarden/internal/wire"
)

// Store is the immutable, in-memory index built from a geosite.dat blob.
// Safe for concurrent use: after Load returns, Store is read-only.
type Store struct {
	logger *slog.Logger

	categories map[string][]Pattern // lowercased category code -> patterns

	warnedMu sync.Mutex
	warned   map[string]struct{} // categories already logged as missing

	lookups atomic.Uint64
	hits    atomic.Uint64
}

// Load parses a raw geosite.dat blob into a Store. Categories are
// lowercased at load time so Contains never has to case-fold them.
func Load(data []byte, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	raw, err := decodeGeoSiteList(data)
	if err != nil {
		return nil, fmt.Errorf("geosite: decode failed: %w", err)
	}

	categories := make(map[string][]Pattern, len(raw))
	for code, patterns := range raw {
		categories[strings.ToLower(code)] = patterns
	}

	return &Store{
		logger:     logger,
		categories: categories,
		warned:     make(map[string]struct{}),
	}, nil
}

// Contains reports whether domain (already normalized per wire.NormalizeName)
// belongs to any of the given categories, evaluated in order; it returns
// true on the first hit (spec.md §4.3). A category absent from the loaded
// file is logged once at WARN and treated as "no match" — it never causes
// Contains to error, and per spec.md §8's monotonicity property, adding a
// missing category can never flip a true result to false.
func (s *Store) Contains(domain string, categories []string) bool {
	s.lookups.Add(1)
	domain = wire.NormalizeName(domain)

	for _, cat := range categories {
		cat = strings.ToLower(cat)
		patterns, ok := s.categories[cat]
		if !ok {
			s.warnMissing(cat)
			continue
		}
		for _, p := range patterns {
			if p.matches(domain) {
				s.hits.Add(1)
				return true
			}
		}
	}
	return false
}

func (s *Store) warnMissing(cat string) {
	s.warnedMu.Lock()
	defer s.warnedMu.Unlock()
	if _, already := s.warned[cat]; already {
		return
	}
	s.warned[cat] = struct{}{}
	s.logger.Warn("geosite category not found in loaded data", "category", cat)
}

// CategoryCount returns the number of distinct categories loaded, for
// startup logging and the admin stats surface.
func (s *Store) CategoryCount() int {
	return len(s.categories)
}

// Stats reports cumulative lookup/hit counters for observability.
type Stats struct {
	Lookups uint64
	Hits    uint64
}

// Stats returns a snapshot of the store's lookup counters.
func (s *Store) Stats() Stats {
	return Stats{Lookups: s.lookups.Load(), Hits: s.hits.Load()}
}
