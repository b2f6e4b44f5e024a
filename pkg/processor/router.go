package processor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"hikari-hq/gateway/pkg/proxy"
	"hikari-hq/gateway/pkg/proxy/request"
)

// RouterFilterID is the filter config id of RouterFilter.
const RouterFilterID = "router"

// RouterConfig is the configuration of RouterFilter.
type RouterConfig struct {
	// Host is the downstream host[:port]. Required.
	Host string `json:"host"`

	// Scheme is "http" or "https"; empty keeps the current scheme.
	Scheme string `json:"scheme"`

	// Paths restricts the rule to requests whose path starts with one of
	// these prefixes. Empty accepts every path.
	Paths []string `json:"paths"`

	// StripPrefix removes the matched prefix from the outbound path.
	StripPrefix bool `json:"strip_prefix"`

	// PathPrefix is prepended to the outbound path.
	PathPrefix string `json:"path_prefix"`

	// TimeoutMS bounds the downstream call in milliseconds.
	TimeoutMS int `json:"timeout_ms"`
}

var errRouterHost = errors.New("router: host is required")

// RouterFilter points the outbound call at the downstream service named in
// the rule.
type RouterFilter struct {
	configs configCache[RouterConfig]
}

// NewRouterFilter returns the router filter.
func NewRouterFilter() *RouterFilter {
	return &RouterFilter{}
}

// ID returns RouterFilterID.
func (f *RouterFilter) ID() string { return RouterFilterID }

// Order places routing after header rewriting.
func (f *RouterFilter) Order() int { return 100 }

// Filter rewrites the descriptor overlay.
func (f *RouterFilter) Filter(ctx *proxy.Context) error {
	fc, err := ctx.FilterConfig(RouterFilterID)
	if err != nil {
		return err
	}
	cfg, err := f.configs.get(fc.Config)
	if err != nil {
		return err
	}
	if cfg.Host == "" {
		return errRouterHost
	}

	d := ctx.Request()
	path := d.ModifyPath()
	if len(cfg.Paths) > 0 {
		matched := ""
		for _, p := range cfg.Paths {
			if strings.HasPrefix(path, p) {
				matched = p
				break
			}
		}
		if matched == "" {
			return fmt.Errorf("%s: %w", path, proxy.ErrPathNotMatched)
		}
		if cfg.StripPrefix {
			path = strings.TrimPrefix(path, matched)
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
		}
	}
	if cfg.PathPrefix != "" {
		path = strings.TrimSuffix(cfg.PathPrefix, "/") + path
	}

	switch strings.ToLower(cfg.Scheme) {
	case "":
	case "http":
		d.SetModifyScheme(request.SchemeHTTP)
	case "https":
		d.SetModifyScheme(request.SchemeHTTPS)
	default:
		return fmt.Errorf("router: unsupported scheme %q", cfg.Scheme)
	}

	d.SetModifyHost(cfg.Host)
	d.SetModifyPath(path)
	if cfg.TimeoutMS > 0 {
		d.SetRequestTimeout(time.Duration(cfg.TimeoutMS) * time.Millisecond)
	}
	return nil
}
