package rule

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is a keyed collection of rules.
type Store interface {
	// Get returns the rule with the given ID or ErrRuleNotFound.
	Get(ctx context.Context, id string) (*Rule, error)

	// List returns all rules sorted by Compare.
	List(ctx context.Context) ([]*Rule, error)

	// Put inserts or replaces a rule.
	Put(ctx context.Context, r *Rule) error

	// Close releases backend resources.
	Close() error
}

// FilterConfigOf looks up a filter configuration of a stored rule.
func FilterConfigOf(ctx context.Context, s Store, ruleID, filterID string) (FilterConfig, error) {
	r, err := s.Get(ctx, ruleID)
	if err != nil {
		return FilterConfig{}, err
	}
	fc, ok := r.FilterConfig(filterID)
	if !ok {
		return FilterConfig{}, fmt.Errorf("%w: rule %q filter %q", ErrFilterConfigNotFound, ruleID, filterID)
	}
	return fc, nil
}

// MemoryStore is an in-memory Store. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

// NewMemoryStore creates a store seeded with rules.
func NewMemoryStore(rules ...*Rule) (*MemoryStore, error) {
	s := &MemoryStore{rules: make(map[string]*Rule, len(rules))}
	for _, r := range rules {
		if err := s.Put(context.Background(), r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRuleNotFound, id)
	}
	return r, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]*Rule, error) {
	s.mu.RLock()
	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	s.mu.RUnlock()

	Sort(out)
	return out, nil
}

// Put implements Store. The stored rule is a copy, so later changes to r
// do not leak into requests that already resolved it.
func (s *MemoryStore) Put(_ context.Context, r *Rule) error {
	if err := Validate(r); err != nil {
		return err
	}
	cp := *r
	cp.FilterConfigs = append([]FilterConfig(nil), r.FilterConfigs...)

	s.mu.Lock()
	s.rules[cp.ID] = &cp
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored rules.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

// ruleFile is the on-disk layout of a YAML rule file.
type ruleFile struct {
	Rules []*Rule `yaml:"rules"`
}

// ParseYAML decodes and validates a YAML rule document.
func ParseYAML(data []byte) ([]*Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Rules))
	for i, r := range f.Rules {
		if err := Validate(r); err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("rules[%d]: %w: duplicate rule id %q", i, ErrInvalidRule, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	Sort(f.Rules)
	return f.Rules, nil
}

// LoadFile reads a YAML rule file into a MemoryStore. The file is read once;
// rules are not reloaded when it changes.
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newStoreError("file", "read", fmt.Errorf("%q: %w", path, err))
	}
	rules, err := ParseYAML(data)
	if err != nil {
		return nil, newStoreError("file", "parse", fmt.Errorf("%q: %w", path, err))
	}
	return NewMemoryStore(rules...)
}
