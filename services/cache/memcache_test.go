package cache

import (
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/stretchr/testify/assert"
)

// This test requires a running memcached instance
// If memcached is not available, the test will be skipped
func TestMemcacheService(t *testing.T) {
	// Create a memcache client
	mc := NewMemcacheService("localhost:11211")

	// Test if memcached is available
	if err := mc.Ping(); err != nil {
		t.Skip("Memcached is not available, skipping test")
	}

	// Set a cooldown marker
	err := mc.Set("test_rate_limited", []byte("600"), 1*time.Second)
	assert.NoError(t, err)

	// Get the value
	value, err := mc.Get("test_rate_limited")
	assert.NoError(t, err)
	assert.Equal(t, "600", string(value))

	// Delete the value
	err = mc.Delete("test_rate_limited")
	assert.NoError(t, err)

	// Try to get the deleted value
	_, err = mc.Get("test_rate_limited")
	assert.Error(t, err)
	assert.True(t, IsMiss(err))

	// Deleting a missing key is not an error
	assert.NoError(t, mc.Delete("test_rate_limited"))
}

func TestIsMiss(t *testing.T) {
	assert.True(t, IsMiss(memcache.ErrCacheMiss))
	assert.False(t, IsMiss(memcache.ErrServerError))
	assert.False(t, IsMiss(nil))
}
