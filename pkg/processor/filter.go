package processor

import (
	"cmp"
	"fmt"
	"runtime/debug"
	"slices"

	"hikari-hq/gateway/pkg/proxy"
)

// Filter is one step of request processing. A filter reads its
// configuration from the bound rule with ctx.FilterConfig(ID()).
type Filter interface {
	// ID matches the filter configuration id in a rule.
	ID() string

	// Order positions the filter in the chain; lower runs first.
	Order() int

	// Filter inspects or rewrites the request. A returned error stops
	// the chain.
	Filter(ctx *proxy.Context) error
}

// Chain runs filters in ascending Order, ties broken by ID.
type Chain struct {
	filters []Filter
}

// NewChain sorts filters into a chain. Duplicate IDs are rejected.
func NewChain(filters ...Filter) (*Chain, error) {
	seen := make(map[string]bool, len(filters))
	sorted := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if seen[f.ID()] {
			return nil, fmt.Errorf("duplicate filter id %q", f.ID())
		}
		seen[f.ID()] = true
		sorted = append(sorted, f)
	}
	slices.SortStableFunc(sorted, func(a, b Filter) int {
		if c := cmp.Compare(a.Order(), b.Order()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})
	return &Chain{filters: sorted}, nil
}

// IDs returns the filter ids in execution order.
func (c *Chain) IDs() []string {
	ids := make([]string, len(c.filters))
	for i, f := range c.filters {
		ids[i] = f.ID()
	}
	return ids
}

// Run executes the filters enabled by the context's rule. The first
// failure, including a panic, is returned as a *proxy.FilterError.
func (c *Chain) Run(ctx *proxy.Context) error {
	r := ctx.Rule()
	if r == nil {
		return nil
	}
	for _, f := range c.filters {
		if !r.HasFilter(f.ID()) {
			continue
		}
		if err := runFilter(f, ctx); err != nil {
			return err
		}
	}
	return nil
}

func runFilter(f Filter, ctx *proxy.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &proxy.FilterError{
				FilterID: f.ID(),
				Err:      fmt.Errorf("panic: %v\n%s", r, debug.Stack()),
			}
		}
	}()
	if err := f.Filter(ctx); err != nil {
		return &proxy.FilterError{FilterID: f.ID(), Err: err}
	}
	return nil
}
