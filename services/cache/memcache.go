package cache

import (
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"sjsage522/productharvester/logger"
)

// DefaultTimeout bounds every memcache round trip
const DefaultTimeout = 500 * time.Millisecond

// MemcacheService implements CacheService using memcache
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService creates a new memcache service
func NewMemcacheService(serverAddr string) *MemcacheService {
	client := memcache.New(serverAddr)
	client.Timeout = DefaultTimeout

	logger.ForCache().Debug().Str("addr", serverAddr).Msg("Memcache client created")
	return &MemcacheService{
		client: client,
	}
}

// Ping checks that the memcache server is reachable
func (m *MemcacheService) Ping() error {
	return m.client.Ping()
}

// Get retrieves a value from memcache
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		if !IsMiss(err) {
			logger.ForCache().Warn().Err(err).Str("key", key).Msg("Memcache get failed")
		}
		return nil, err
	}
	return item.Value, nil
}

// Set stores a value in memcache with an expiration time
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
}

// Delete removes a value from memcache
func (m *MemcacheService) Delete(key string) error {
	err := m.client.Delete(key)
	if IsMiss(err) {
		return nil
	}
	return err
}

// IsMiss reports whether err only means the key does not exist
func IsMiss(err error) bool {
	return errors.Is(err, memcache.ErrCacheMiss)
}
