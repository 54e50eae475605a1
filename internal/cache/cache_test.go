package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Put("k", "v", time.Minute)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestCache_MissAfterExpiry(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Put("k", "v", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	// the lazy delete on read removed the entry
	assert.Equal(t, 0, c.Len())
}

func TestCache_NonPositiveTTLIgnored(t *testing.T) {
	c := New(0)
	defer c.Close()

	c.Put("k", "v", 0)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	c := New(20 * time.Millisecond)
	defer c.Close()

	c.Put("short", "v", 5*time.Millisecond)
	c.Put("long", "v", time.Minute)

	assert.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 10*time.Millisecond)

	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestKey_CanonicalizesEquivalentInputs(t *testing.T) {
	a := Key("get_weather", map[string]any{"location": "London"})
	b := Key("get_weather", map[string]any{"location": "  london "})
	assert.Equal(t, a, b)
}

func TestKey_DistinguishesToolAndInput(t *testing.T) {
	a := Key("get_weather", map[string]any{"location": "london"})
	b := Key("lookup_definition", map[string]any{"location": "london"})
	c := Key("get_weather", map[string]any{"location": "paris"})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestKey_MapOrderIrrelevant(t *testing.T) {
	a := Key("t", map[string]any{"x": "1", "y": "2"})
	b := Key("t", map[string]any{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
}

func TestKey_UnmarshalableInputIsUncacheable(t *testing.T) {
	// Channels cannot be JSON-encoded. Two different unmarshalable inputs
	// must not collide on a shared fallback key; both get no key at all.
	a := Key("t", map[string]any{"ch": make(chan int)})
	b := Key("t", map[string]any{"fn": func() {}})
	assert.Empty(t, a)
	assert.Empty(t, b)
}
