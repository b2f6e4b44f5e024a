package rule

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRuleNotFound is returned when no rule exists for an ID.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrFilterConfigNotFound is returned when a rule has no configuration
	// for a filter ID.
	ErrFilterConfigNotFound = errors.New("filter config not found")

	// ErrInvalidRule is returned when a rule fails validation.
	ErrInvalidRule = errors.New("invalid rule")
)

// StoreError wraps a failure from a rule store backend.
type StoreError struct {
	Backend   string
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("rule store %s: %s: %v", e.Backend, e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(backend, op string, err error) error {
	return &StoreError{Backend: backend, Operation: op, Err: err}
}

// Validate checks the invariants a rule must hold before it is stored.
func Validate(r *Rule) error {
	if r == nil {
		return fmt.Errorf("%w: nil rule", ErrInvalidRule)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	seen := make(map[string]struct{}, len(r.FilterConfigs))
	for i, fc := range r.FilterConfigs {
		if fc.ID == "" {
			return fmt.Errorf("%w: rule %q: filter_configs[%d]: id is required", ErrInvalidRule, r.ID, i)
		}
		key := strings.ToLower(fc.ID)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: rule %q: duplicate filter config %q", ErrInvalidRule, r.ID, fc.ID)
		}
		seen[key] = struct{}{}
	}
	return nil
}
