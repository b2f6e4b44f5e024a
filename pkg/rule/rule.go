package rule

import (
	"cmp"
	"slices"
	"strings"
)

// FilterConfig is the configuration of one filter inside a rule.
// Identity is the ID; Config is opaque to the gateway core and is
// interpreted by the filter that owns the ID.
type FilterConfig struct {
	// ID names the filter this configuration belongs to.
	ID string `yaml:"id" json:"id"`

	// Config is the raw filter configuration, usually a JSON document.
	Config string `yaml:"config" json:"config"`
}

// Rule is a named, ordered routing configuration bundling filter
// configurations for one logical route.
//
// Two rules with the same ID are the same rule regardless of their other
// fields. Rules are read-only once handed to request processing.
type Rule struct {
	// ID uniquely identifies the rule.
	ID string `yaml:"id" json:"id"`

	// Name is a human-readable label.
	Name string `yaml:"name" json:"name"`

	// Protocol is the downstream protocol tag (e.g. "http").
	Protocol string `yaml:"protocol" json:"protocol"`

	// Order is the priority; lower values sort first.
	Order int `yaml:"order" json:"order"`

	// FilterConfigs holds at most one configuration per filter ID.
	FilterConfigs []FilterConfig `yaml:"filter_configs" json:"filter_configs"`
}

// AddFilterConfig adds fc to the rule. It reports false, leaving the rule
// unchanged, if a configuration with the same ID, compared
// case-insensitively, is already present.
func (r *Rule) AddFilterConfig(fc FilterConfig) bool {
	for _, existing := range r.FilterConfigs {
		if strings.EqualFold(existing.ID, fc.ID) {
			return false
		}
	}
	r.FilterConfigs = append(r.FilterConfigs, fc)
	return true
}

// FilterConfig returns the configuration for the filter with the given ID.
// IDs are matched case-insensitively. The second result is false if the
// rule carries no configuration for that filter.
func (r *Rule) FilterConfig(id string) (FilterConfig, bool) {
	for _, fc := range r.FilterConfigs {
		if strings.EqualFold(fc.ID, id) {
			return fc, true
		}
	}
	return FilterConfig{}, false
}

// HasFilter reports whether the rule carries a configuration for id.
func (r *Rule) HasFilter(id string) bool {
	_, ok := r.FilterConfig(id)
	return ok
}

// Equal reports whether r and other identify the same rule.
func (r *Rule) Equal(other *Rule) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.ID == other.ID
}

// Compare orders rules by Order ascending, then by ID lexicographically.
// It returns a negative number when a sorts before b.
func Compare(a, b *Rule) int {
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Sort sorts rules in place by Compare.
func Sort(rules []*Rule) {
	slices.SortFunc(rules, Compare)
}
