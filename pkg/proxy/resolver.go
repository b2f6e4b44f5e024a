package proxy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hikari-hq/gateway/pkg/proxy/request"
	"hikari-hq/gateway/pkg/rule"
)

// HeaderRuleID is the header HeaderResolver reads by default.
const HeaderRuleID = "X-Rule-Id"

// RuleResolver selects the rule that governs a request. Implementations
// return an error wrapping rule.ErrRuleNotFound when nothing matches.
type RuleResolver interface {
	ResolveRule(ctx context.Context, d *request.Descriptor) (*rule.Rule, error)
}

// RuleResolverFunc adapts an ordinary function to RuleResolver.
type RuleResolverFunc func(ctx context.Context, d *request.Descriptor) (*rule.Rule, error)

// ResolveRule calls f(ctx, d).
func (f RuleResolverFunc) ResolveRule(ctx context.Context, d *request.Descriptor) (*rule.Rule, error) {
	return f(ctx, d)
}

// HeaderResolver reads the rule id from a request header.
type HeaderResolver struct {
	Store  rule.Store
	Header string
}

// ResolveRule looks up the rule named by the header.
func (r HeaderResolver) ResolveRule(ctx context.Context, d *request.Descriptor) (*rule.Rule, error) {
	name := r.Header
	if name == "" {
		name = HeaderRuleID
	}
	id := strings.TrimSpace(d.Headers().Get(name))
	if id == "" {
		return nil, fmt.Errorf("header %s not set: %w", name, rule.ErrRuleNotFound)
	}
	return r.Store.Get(ctx, id)
}

// PathResolver uses the first path segment as the rule id, so "/users/42"
// resolves the rule "users".
type PathResolver struct {
	Store rule.Store
}

// ResolveRule looks up the rule named by the first path segment.
func (r PathResolver) ResolveRule(ctx context.Context, d *request.Descriptor) (*rule.Rule, error) {
	segment, _, _ := strings.Cut(strings.TrimPrefix(d.Path(), "/"), "/")
	if segment == "" {
		return nil, fmt.Errorf("path %q has no rule segment: %w", d.Path(), rule.ErrRuleNotFound)
	}
	return r.Store.Get(ctx, segment)
}

// FirstOf tries each resolver in order and returns the first match. Errors
// other than rule.ErrRuleNotFound stop the search.
type FirstOf []RuleResolver

// ResolveRule returns the first resolved rule.
func (f FirstOf) ResolveRule(ctx context.Context, d *request.Descriptor) (*rule.Rule, error) {
	for _, r := range f {
		found, err := r.ResolveRule(ctx, d)
		if err == nil {
			return found, nil
		}
		if !errors.Is(err, rule.ErrRuleNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no resolver matched %s: %w", d.Path(), rule.ErrRuleNotFound)
}
