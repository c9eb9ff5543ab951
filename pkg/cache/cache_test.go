package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCache_SetGet(t *testing.T) {
	c := NewTTLCache()
	defer c.Stop()

	c.Set("quote:AAPL", 42, time.Minute)

	v, ok := c.Get("quote:AAPL")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = c.Get("quote:MSFT")
	assert.False(t, ok)
}

func TestTTLCache_LazyEviction(t *testing.T) {
	c := NewTTLCache()
	defer c.Stop()

	c.Set("k", "v", time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTTLCache_NoExpiry(t *testing.T) {
	c := NewTTLCache()
	defer c.Stop()

	c.Set("k", "v", 0)
	time.Sleep(5 * time.Millisecond)

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestTTLCache_Replace(t *testing.T) {
	c := NewTTLCache()
	defer c.Stop()

	c.Set("k", 1, time.Minute)
	c.Set("k", 2, time.Minute)

	v, _ := c.Get("k")
	assert.Equal(t, 2, v)

	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}
