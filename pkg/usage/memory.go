package usage

import (
	"context"
	"sync"
)

// MemoryStats keeps counters in process.
type MemoryStats struct {
	mu       sync.Mutex
	counters map[string]map[string]float64
}

var _ Stats = (*MemoryStats)(nil)

func NewMemoryStats() *MemoryStats {
	return &MemoryStats{
		counters: map[string]map[string]float64{},
	}
}

func (m *MemoryStats) Increment(_ context.Context, key string, fields map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.counters[key]
	if !ok {
		bucket = map[string]float64{}
		m.counters[key] = bucket
	}
	for k, v := range fields {
		bucket[k] += v
	}
	return nil
}

func (m *MemoryStats) Get(_ context.Context, key string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ret := map[string]float64{}
	for k, v := range m.counters[key] {
		ret[k] = v
	}
	return ret, nil
}
