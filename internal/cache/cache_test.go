package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rdapd/internal/rdap"
)

func TestKeyCanonicalization(t *testing.T) {
	a := Key("domain", "example.com", rdap.ParseExtensions("jscontact,cidr0"))
	b := Key("domain", "example.com", rdap.ParseExtensions("cidr0, jscontact"))
	assert.Equal(t, a, b, "extension order must not change the key")

	assert.NotEqual(t, a, Key("domain", "example.com", nil))
	assert.NotEqual(t, a, Key("nameserver", "example.com", rdap.ParseExtensions("jscontact,cidr0")))
	assert.NotEqual(t, Key("domain", "a.example", nil), Key("domain", "b.example", nil))
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "domain|miss.example")
	require.NoError(t, err)
	assert.False(t, ok)

	want := &Entry{Status: 200, Body: []byte(`{"objectClassName":"domain"}`)}
	require.NoError(t, m.Set(ctx, "domain|hit.example", want))

	got, ok, err := m.Get(ctx, "domain|hit.example")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Body, got.Body)
}

func TestMemoryExpiry(t *testing.T) {
	current := time.Now()
	m := NewMemory(WithTTL(time.Minute))
	m.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", &Entry{Status: 200}))

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	current = current.Add(time.Minute + time.Second)
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire after the ttl")

	m.mu.RLock()
	_, still := m.entries["k"]
	m.mu.RUnlock()
	assert.False(t, still, "expired entry must be dropped")
}

func TestMemoryCapacity(t *testing.T) {
	current := time.Now()
	m := NewMemory(WithTTL(time.Minute), WithMaxEntries(2))
	m.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", &Entry{Status: 200}))
	require.NoError(t, m.Set(ctx, "b", &Entry{Status: 200}))

	// Full of live entries: the new key is not stored.
	require.NoError(t, m.Set(ctx, "c", &Entry{Status: 200}))
	_, ok, err := m.Get(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)

	// Refreshing an existing key still works at capacity.
	require.NoError(t, m.Set(ctx, "a", &Entry{Status: 302, Location: "https://rdap.example.net/domain/a"}))
	got, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 302, got.Status)

	// Once the old entries expire, the sweep makes room.
	current = current.Add(2 * time.Minute)
	require.NoError(t, m.Set(ctx, "c", &Entry{Status: 200}))
	_, ok, err = m.Get(ctx, "c")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNopNeverStores(t *testing.T) {
	var n Nop
	ctx := context.Background()

	require.NoError(t, n.Set(ctx, "k", &Entry{Status: 200}))
	_, ok, err := n.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, n.Close())
}
