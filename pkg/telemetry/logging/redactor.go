package logging

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"
)

// Redacted replaces sensitive values in log output.
const Redacted = "***"

// Pattern names for the built-in value patterns.
const (
	PatternBearerToken = "bearer_token"
	PatternBasicAuth   = "basic_auth"
	PatternPassword    = "password"
	PatternURLUserinfo = "url_userinfo"
)

// Redactor masks credentials in log attributes. Attributes are masked by
// key when the key names a credential-bearing header or field, and string
// values are scrubbed with a small set of patterns otherwise.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// sensitiveKeys lists lowercase substrings that mark an attribute key as
// sensitive.
var sensitiveKeys = []string{
	"authorization",
	"cookie",
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"x-api-key",
}

// NewRedactor creates a Redactor with the built-in patterns.
func NewRedactor() *Redactor {
	defs := []struct {
		name, regex, replacement string
	}{
		{PatternBearerToken, `(?i)bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer " + Redacted},
		{PatternBasicAuth, `(?i)basic\s+[a-zA-Z0-9+/]+=*`, "Basic " + Redacted},
		{PatternPassword, `(?i)(password|passwd|pwd)=[^&\s]+`, "$1=" + Redacted},
		{PatternURLUserinfo, `(://[^/:@\s]+):[^/@\s]+@`, "$1:" + Redacted + "@"},
	}

	r := &Redactor{}
	for _, d := range defs {
		r.patterns = append(r.patterns, &redactPattern{
			name:        d.name,
			regex:       regexp.MustCompile(d.regex),
			replacement: d.replacement,
		})
	}
	return r
}

// RedactString scrubs credentials embedded in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactHeader returns a copy of h with sensitive header values masked.
func (r *Redactor) RedactHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		if IsSensitiveKey(k) {
			out[k] = []string{Redacted}
			continue
		}
		cp := make([]string, len(vs))
		for i, v := range vs {
			cp[i] = r.RedactString(v)
		}
		out[k] = cp
	}
	return out
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if IsSensitiveKey(a.Key) && a.Value.Kind() != slog.KindGroup {
		return slog.String(a.Key, Redacted)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindAny:
		if h, ok := a.Value.Any().(http.Header); ok {
			return slog.Any(a.Key, r.RedactHeader(h))
		}
	}
	return a
}

// IsSensitiveKey reports whether key names a credential-bearing field.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
