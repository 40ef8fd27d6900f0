package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_GetSet(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Close()

	c.Set("a", "alpha")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alpha", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Close()

	current := time.Now()
	c.now = func() time.Time { return current }

	c.Set("k", 42)
	current = current.Add(2 * time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Cleanup(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Close()

	current := time.Now()
	c.now = func() time.Time { return current }
	c.Set("a", 1)
	c.Set("b", 2)
	current = current.Add(time.Hour)
	c.cleanup()
	assert.Equal(t, 0, c.Len())
}
