package proxy

import (
	"net/http"
	"strings"

	"github.com/Dermot10/reverse-proxy/internal/util"
)

// HeaderPolicy decides which inbound headers are forwarded upstream.
// Hop-by-hop headers, Host, Content-Length and Accept-Encoding are always
// dropped; the outbound transport negotiates compression itself. When the
// allow list is non-empty only listed headers pass. Names match
// case-insensitively.
type HeaderPolicy struct {
	deny  map[string]struct{}
	allow map[string]struct{}
}

// NewHeaderPolicy builds a policy from extra deny entries and an optional
// allow list.
func NewHeaderPolicy(deny, allow []string) *HeaderPolicy {
	p := &HeaderPolicy{
		deny: make(map[string]struct{}),
	}
	for _, h := range util.HopByHopHeaders() {
		p.deny[http.CanonicalHeaderKey(h)] = struct{}{}
	}
	p.deny["Host"] = struct{}{}
	p.deny["Content-Length"] = struct{}{}
	p.deny["Accept-Encoding"] = struct{}{}
	for _, h := range deny {
		p.deny[http.CanonicalHeaderKey(strings.TrimSpace(h))] = struct{}{}
	}

	if len(allow) > 0 {
		p.allow = make(map[string]struct{}, len(allow))
		for _, h := range allow {
			p.allow[http.CanonicalHeaderKey(strings.TrimSpace(h))] = struct{}{}
		}
	}
	return p
}

// DefaultHeaderPolicy forwards everything except the built-in deny list.
func DefaultHeaderPolicy() *HeaderPolicy {
	return NewHeaderPolicy(nil, nil)
}

// Allowed reports whether the named header may be forwarded.
func (p *HeaderPolicy) Allowed(name string) bool {
	key := http.CanonicalHeaderKey(name)
	if _, denied := p.deny[key]; denied {
		return false
	}
	if p.allow == nil {
		return true
	}
	_, ok := p.allow[key]
	return ok
}

// Apply copies the forwardable entries of headers into dst.
func (p *HeaderPolicy) Apply(dst http.Header, headers map[string]string) {
	for name, value := range headers {
		if p.Allowed(name) {
			dst.Set(name, value)
		}
	}
}
