package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_ObserveQuery(t *testing.T) {
	r := New()
	r.ObserveQuery("cloudflare-doh", "success", 12*time.Millisecond)
	r.ObserveQuery("cloudflare-doh", "success", 8*time.Millisecond)
	r.ObserveQuery("alidns-doh", "servfail", 5*time.Millisecond)

	count, err := testutil.GatherAndCount(r.Gatherer(), "routewarden_queries_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, count) // two distinct (group, outcome) label combinations
}
