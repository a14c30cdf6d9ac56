package containers

import "sync"

// SyncMap is a typed wrapper around sync.Map.
type SyncMap[K comparable, V any] struct {
	inner sync.Map
}

func (s *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	var v any
	if v, ok = s.inner.Load(key); !ok {
		return
	}
	return v.(V), ok
}

// LoadOrStore returns the existing value for key when present. Otherwise it
// stores and returns value. loaded reports whether the value was present.
func (s *SyncMap[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	v, loaded := s.inner.LoadOrStore(key, value)
	return v.(V), loaded
}
