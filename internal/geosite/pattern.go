// Package geosite loads the v2ray geosite.dat domain-classification table
// and answers category-membership queries for the rule engine.
//
// The store is built once at startup from a protobuf-wire-compatible,
// length-delimited binary blob (see decode.go) and is immutable and
// read-only thereafter — the process never refreshes or hot-reloads it.
package geosite

import (
	"regexp"
	"strings"
	"sync"
)

// PatternType is the discriminant of a domain pattern (wire field 1 of a
// Domain message). A tagged switch over this type, rather than an interface
// implementation per variant, keeps pattern evaluation flat and allocation-free.
type PatternType int

const (
	// RootDomain matches if the queried name ends with Value on a label
	// boundary (see matchRootDomain).
	RootDomain PatternType = 0
	// Regex matches if the compiled regular expression matches the name.
	Regex PatternType = 1
	// Plain matches if the queried name contains Value as a raw substring.
	Plain PatternType = 2
	// Full matches iff the queried name equals Value.
	Full PatternType = 3
)

// Pattern is one (type, value) entry under a category code.
type Pattern struct {
	Type  PatternType
	Value string
}

// regexCache lazily compiles Regex patterns once and reuses the compiled
// form across all subsequent evaluations of the same pattern. A sync.Map is
// enough synchronization for this: writers race harmlessly to compile the
// same pattern once, readers never block.
var regexCache sync.Map // map[string]*regexp.Regexp

func compileCached(expr string) (*regexp.Regexp, error) {
	if v, ok := regexCache.Load(expr); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	actual, _ := regexCache.LoadOrStore(expr, re)
	return actual.(*regexp.Regexp), nil
}

// matches evaluates a single pattern against an already-lowercased domain.
func (p Pattern) matches(domain string) bool {
	switch p.Type {
	case Full:
		return strings.EqualFold(domain, p.Value)
	case RootDomain:
		return matchRootDomain(domain, strings.ToLower(p.Value))
	case Plain:
		return strings.Contains(domain, strings.ToLower(p.Value))
	case Regex:
		re, err := compileCached(p.Value)
		if err != nil {
			return false
		}
		return re.MatchString(domain)
	default:
		return false
	}
}

// matchRootDomain implements the label-boundary suffix semantics spec.md's
// Design Notes recommend as the production default: a match must either be
// an exact equal or be preceded by a '.', so "cn" matches "example.cn" but
// not "unicorn".
func matchRootDomain(domain, suffix string) bool {
	if domain == suffix {
		return true
	}
	if len(domain) <= len(suffix) {
		return false
	}
	return strings.HasSuffix(domain, suffix) && domain[len(domain)-len(suffix)-1] == '.'
}
