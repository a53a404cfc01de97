package auth

import (
	"net/http"
	"strings"
)

// Rule grants access to requests whose path starts with Prefix. An empty Method matches any method.
type Rule struct {
	Prefix string
	Method string
	Role   Role
}

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
	Rules          []Rule
}

// DefaultRules covers the alert API. Earlier rules win.
var DefaultRules = []Rule{
	{Prefix: "/api/v1/signals/", Role: RoleAdmin},
	{Prefix: "/api/v1/notifications", Role: RoleViewer},
	{Prefix: "/api/v1/alerts", Method: http.MethodGet, Role: RoleViewer},
}

// NewDefaultPolicy builds a policy that always exempts /healthz and /metrics.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := map[string]struct{}{
		"/healthz": {},
		"/metrics": {},
	}
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes, Rules: DefaultRules}
}

// IsExempt reports whether a request skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	path := r.URL.Path
	if _, ok := p.ExemptPaths[path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role a request needs. ok is false for paths outside /api/.
func (p Policy) RequiredRole(r *http.Request) (role Role, ok bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	for _, rule := range p.Rules {
		if !strings.HasPrefix(path, rule.Prefix) {
			continue
		}
		if rule.Method != "" && rule.Method != r.Method {
			continue
		}
		return rule.Role, true
	}
	if !strings.HasPrefix(path, "/api/") {
		return "", false
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return RoleViewer, true
	}
	return RoleOperator, true
}
