package processor

import (
	"encoding/json"
	"fmt"
	"sync"
)

// configCache memoizes parsed filter configurations keyed by their raw
// text. Rules are read-only, so an entry never goes stale.
type configCache[T any] struct {
	entries sync.Map
}

func (c *configCache[T]) get(raw string) (*T, error) {
	if v, ok := c.entries.Load(raw); ok {
		return v.(*T), nil
	}
	cfg := new(T)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), cfg); err != nil {
			return nil, fmt.Errorf("invalid filter config: %w", err)
		}
	}
	v, _ := c.entries.LoadOrStore(raw, cfg)
	return v.(*T), nil
}
