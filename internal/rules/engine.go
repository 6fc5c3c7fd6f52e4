// Package rules evaluates the ordered domain-to-upstream routing table: for
// a queried domain it walks rules in declaration order and returns the name
// of the first upstream group whose rule is satisfied.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoMatch is returned when no rule — including no catch-all — matches a
// queried domain. The forwarder translates this into a ServFail response;
// it is never panicked or used as exception-style control flow internally.
var ErrNoMatch = errors.New("rules: no rule matched")

// categoryMembership answers geosite category-membership queries. The rule
// engine depends only on this narrow interface, not on the geosite package
// directly, so it can be tested without a loaded geosite blob.
type categoryMembership interface {
	Contains(domain string, categories []string) bool
}

// patternKind is the discriminator of a single rule pattern (the prefix
// before the ':' in the configuration string, or '*' for catch-all).
type patternKind int

const (
	kindGeosite patternKind = iota
	kindPrefix
	kindSuffix
	kindRegexp
	kindWildcard
)

// pattern is one parsed entry of a rule's pattern list.
type pattern struct {
	kind  patternKind
	value string // already lowercased where applicable; geosite code verbatim
	re    *regexp.Regexp
}

// Rule is an ordered pair (pattern list, upstream group name), matching one
// entry of the configuration's "rules" array.
type Rule struct {
	Patterns []pattern
	Group    string
}

// Engine holds the parsed, ordered rule table and the geosite store it
// consults for geosite: patterns.
type Engine struct {
	rules   []Rule
	geosite categoryMembership
}

// NewEngine parses raw pattern strings (as they appear in configuration,
// e.g. "suffix:cn", "geosite:google", "*") into an Engine ready to evaluate.
// geosite may be nil only if no rule references a geosite: pattern.
func NewEngine(raw []RawRule, geosite categoryMembership) (*Engine, error) {
	rules := make([]Rule, 0, len(raw))
	for i, r := range raw {
		patterns := make([]pattern, 0, len(r.Domain))
		for _, s := range r.Domain {
			p, err := parsePattern(s)
			if err != nil {
				return nil, fmt.Errorf("rules: rule %d: %w", i, err)
			}
			patterns = append(patterns, p)
		}
		rules = append(rules, Rule{Patterns: patterns, Group: r.DNSServer})
	}
	return &Engine{rules: rules, geosite: geosite}, nil
}

// RawRule mirrors one entry of the configuration's "rules" array.
type RawRule struct {
	Domain    []string
	DNSServer string
}

func parsePattern(s string) (pattern, error) {
	if s == "*" {
		return pattern{kind: kindWildcard}, nil
	}
	switch {
	case strings.HasPrefix(s, "geosite:"):
		return pattern{kind: kindGeosite, value: strings.TrimPrefix(s, "geosite:")}, nil
	case strings.HasPrefix(s, "prefix:"):
		return pattern{kind: kindPrefix, value: strings.ToLower(strings.TrimPrefix(s, "prefix:"))}, nil
	case strings.HasPrefix(s, "suffix:"):
		return pattern{kind: kindSuffix, value: strings.ToLower(strings.TrimPrefix(s, "suffix:"))}, nil
	case strings.HasPrefix(s, "regex:"):
		expr := strings.TrimPrefix(s, "regex:")
		re, err := regexp.Compile(expr)
		if err != nil {
			return pattern{}, fmt.Errorf("invalid regex pattern %q: %w", s, err)
		}
		return pattern{kind: kindRegexp, value: expr, re: re}, nil
	default:
		return pattern{}, fmt.Errorf("unrecognized pattern %q", s)
	}
}

// PickUpstream evaluates the rule table against domain (expected lowercased
// and normalized by the caller, per the forwarder's pipeline) and returns the
// name of the matching upstream group, or ErrNoMatch if none do.
func (e *Engine) PickUpstream(domain string) (string, error) {
	for _, r := range e.rules {
		if e.ruleMatches(r, domain) {
			return r.Group, nil
		}
	}
	return "", ErrNoMatch
}

// ruleMatches implements the within-rule combination semantics: literal
// patterns short-circuit immediately; geosite: patterns in the same rule are
// collected and evaluated together as a single set-membership call only
// after every literal pattern has been scanned without a match.
func (e *Engine) ruleMatches(r Rule, domain string) bool {
	var geositeCodes []string

	for _, p := range r.Patterns {
		switch p.kind {
		case kindWildcard:
			return true
		case kindPrefix:
			if strings.HasPrefix(domain, p.value) {
				return true
			}
		case kindSuffix:
			if matchSuffix(domain, p.value) {
				return true
			}
		case kindRegexp:
			if p.re.MatchString(domain) {
				return true
			}
		case kindGeosite:
			geositeCodes = append(geositeCodes, p.value)
		}
	}

	if len(geositeCodes) == 0 {
		return false
	}
	if e.geosite == nil {
		return false
	}
	return e.geosite.Contains(domain, geositeCodes)
}

// matchSuffix implements the label-boundary suffix default this engine
// resolves in favor of: an exact match, or domain ending in ".suffix".
// "suffix:cn" matches "example.cn" and "cn" but not "unicorn".
func matchSuffix(domain, suffix string) bool {
	if domain == suffix {
		return true
	}
	if len(domain) <= len(suffix) {
		return false
	}
	return strings.HasSuffix(domain, suffix) && domain[len(domain)-len(suffix)-1] == '.'
}
