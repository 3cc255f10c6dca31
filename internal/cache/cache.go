// Package cache holds recently served RDAP responses so repeated lookups
// skip resolution and encoding. Entries are keyed by object kind, canonical
// lookup key, and the negotiated extension set; staleness is bounded by TTL
// only, writes never invalidate. A cache failure is advisory: callers log
// it and resolve as if the lookup missed.
package cache

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rdapd/internal/rdap"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rdapd_response_cache_hits_total",
		Help: "Responses served from the cache",
	}, []string{"backend"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rdapd_response_cache_misses_total",
		Help: "Lookups the cache could not serve",
	}, []string{"backend"})
)

// Entry is one cached response: the encoded body plus everything needed to
// replay it.
type Entry struct {
	Status   int    `json:"status"`
	Body     []byte `json:"body"`
	Location string `json:"location,omitempty"`
}

// Cache is a TTL-bounded response store.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, e *Entry) error
	Close() error
}

// Key canonicalizes one query into its cache key. Extension order does not
// matter; the set is sorted before joining.
func Key(kind, lookup string, exts rdap.ExtensionSet) string {
	parts := append([]string{kind, lookup}, exts.Canonical()...)
	return strings.Join(parts, "|")
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) (*Entry, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, *Entry) error         { return nil }
func (Nop) Close() error                                      { return nil }
