package crawler

import (
	"time"
)

// MockCacheService keeps cooldown markers in memory
type MockCacheService struct {
	cache       map[string][]byte
	expirations map[string]time.Duration
	setErr      error
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache:       make(map[string][]byte),
		expirations: make(map[string]time.Duration),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, &mockError{message: "cache miss"}
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.cache[key] = value
	m.expirations[key] = expiration
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	delete(m.cache, key)
	delete(m.expirations, key)
	return nil
}

type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}
