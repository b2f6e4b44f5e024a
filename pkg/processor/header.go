package processor

import (
	"sort"

	"hikari-hq/gateway/pkg/proxy"
)

// HeaderFilterID is the filter config id of HeaderFilter.
const HeaderFilterID = "header"

// HeaderConfig is the configuration of HeaderFilter.
type HeaderConfig struct {
	// Set replaces outbound header values.
	Set map[string]string `json:"set"`

	// Add appends outbound header values.
	Add map[string]string `json:"add"`

	// ForwardUniqueID sends the request's unique id downstream.
	ForwardUniqueID bool `json:"forward_unique_id"`
}

// HeaderFilter rewrites outbound headers.
type HeaderFilter struct {
	configs configCache[HeaderConfig]
}

// NewHeaderFilter returns the header filter.
func NewHeaderFilter() *HeaderFilter {
	return &HeaderFilter{}
}

// ID returns HeaderFilterID.
func (f *HeaderFilter) ID() string { return HeaderFilterID }

// Order runs header rewriting early.
func (f *HeaderFilter) Order() int { return 50 }

// Filter applies Set, then Add, in key order.
func (f *HeaderFilter) Filter(ctx *proxy.Context) error {
	fc, err := ctx.FilterConfig(HeaderFilterID)
	if err != nil {
		return err
	}
	cfg, err := f.configs.get(fc.Config)
	if err != nil {
		return err
	}

	d := ctx.Request()
	for _, k := range sortedKeys(cfg.Set) {
		d.SetHeader(k, cfg.Set[k])
	}
	for _, k := range sortedKeys(cfg.Add) {
		d.AddHeader(k, cfg.Add[k])
	}
	if cfg.ForwardUniqueID {
		d.SetHeader(HeaderUniqueID, ctx.UniqueID())
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
