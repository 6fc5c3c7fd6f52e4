package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGeosite is a minimal categoryMembership stub for engine tests.
type fakeGeosite struct {
	members map[string]map[string]bool // category -> domain -> in-category
}

func (f *fakeGeosite) Contains(domain string, categories []string) bool {
	for _, c := range categories {
		if f.members[c][domain] {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	geo := &fakeGeosite{members: map[string]map[string]bool{
		"google": {"www.google.com": true},
	}}
	raw := []RawRule{
		{Domain: []string{"suffix:cn"}, DNSServer: "alidns-doh"},
		{Domain: []string{"geosite:google"}, DNSServer: "cloudflare-doh"},
		{Domain: []string{"suffix:io"}, DNSServer: "cloudflare-doh"},
		{Domain: []string{"*"}, DNSServer: "alidns-doh"},
	}
	e, err := NewEngine(raw, geo)
	require.NoError(t, err)
	return e
}

func TestEngine_FirstMatchWins(t *testing.T) {
	e := newTestEngine(t)

	got, err := e.PickUpstream("example.cn")
	require.NoError(t, err)
	assert.Equal(t, "alidns-doh", got)
}

func TestEngine_SuffixRequiresLabelBoundary(t *testing.T) {
	e := newTestEngine(t)

	// "unicorn" ends in "cn" but not on a label boundary, so it falls through
	// to the catch-all instead of the suffix:cn rule.
	got, err := e.PickUpstream("unicorn")
	require.NoError(t, err)
	assert.Equal(t, "alidns-doh", got)
}

func TestEngine_GeositeMatch(t *testing.T) {
	e := newTestEngine(t)

	got, err := e.PickUpstream("www.google.com")
	require.NoError(t, err)
	assert.Equal(t, "cloudflare-doh", got)
}

func TestEngine_SuffixIoMatch(t *testing.T) {
	e := newTestEngine(t)

	got, err := e.PickUpstream("some-random.io")
	require.NoError(t, err)
	assert.Equal(t, "cloudflare-doh", got)
}

func TestEngine_CatchAll(t *testing.T) {
	e := newTestEngine(t)

	got, err := e.PickUpstream("intranet.local")
	require.NoError(t, err)
	assert.Equal(t, "alidns-doh", got)
}

func TestEngine_NoMatchWithoutCatchAll(t *testing.T) {
	raw := []RawRule{
		{Domain: []string{"suffix:cn"}, DNSServer: "alidns-doh"},
	}
	e, err := NewEngine(raw, nil)
	require.NoError(t, err)

	_, err = e.PickUpstream("example.com")
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestEngine_LiteralShortCircuitsBeforeGeosite(t *testing.T) {
	// A literal match in the pattern list must win without consulting
	// geosite. With a nil geosite store the geosite: pattern can never
	// match, so only the literal short-circuit can satisfy this rule.
	raw := []RawRule{
		{Domain: []string{"prefix:internal-", "geosite:whatever"}, DNSServer: "local"},
	}
	e, err := NewEngine(raw, nil)
	require.NoError(t, err)

	got, err := e.PickUpstream("internal-service.corp")
	require.NoError(t, err)
	assert.Equal(t, "local", got)
}

func TestEngine_AllGeositeMissWithinRuleContinuesToNextRule(t *testing.T) {
	geo := &fakeGeosite{members: map[string]map[string]bool{}}
	raw := []RawRule{
		{Domain: []string{"geosite:cn", "geosite:private"}, DNSServer: "unreached"},
		{Domain: []string{"*"}, DNSServer: "catch-all"},
	}
	e, err := NewEngine(raw, geo)
	require.NoError(t, err)

	got, err := e.PickUpstream("example.com")
	require.NoError(t, err)
	assert.Equal(t, "catch-all", got)
}

func TestEngine_RegexPattern(t *testing.T) {
	raw := []RawRule{
		{Domain: []string{`regex:^.*\.corp\.example\.com$`}, DNSServer: "internal-dns"},
	}
	e, err := NewEngine(raw, nil)
	require.NoError(t, err)

	got, err := e.PickUpstream("host1.corp.example.com")
	require.NoError(t, err)
	assert.Equal(t, "internal-dns", got)

	_, err = e.PickUpstream("host1.example.com")
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestNewEngine_RejectsUnrecognizedPattern(t *testing.T) {
	raw := []RawRule{
		{Domain: []string{"bogus:foo"}, DNSServer: "x"},
	}
	_, err := NewEngine(raw, nil)
	assert.Error(t, err)
}
