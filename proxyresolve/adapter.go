package proxyresolve

import "context"

// Resolver adapts a fixed set of Providers to remoteproxy.ProxyResolver,
// restricting resolution on each call to the subset named in providers
// (the caller's configured proxy_providers list) when it is non-empty.
type Resolver struct {
	all map[string]Provider
}

// NewResolver indexes providers by name for lookup from Resolve.
func NewResolver(providers []Provider) *Resolver {
	r := &Resolver{all: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.all[p.Name()] = p
	}
	return r
}

// Resolve implements remoteproxy.ProxyResolver. providers, when non-empty,
// restricts which configured providers are considered.
func (r *Resolver) Resolve(_ context.Context, token string, providers []string) (string, error) {
	active := r.subset(providers)
	return Resolve(token, active)
}

func (r *Resolver) subset(names []string) []Provider {
	if len(names) == 0 {
		out := make([]Provider, 0, len(r.all))
		for _, p := range r.all {
			out = append(out, p)
		}
		return out
	}
	out := make([]Provider, 0, len(names))
	for _, name := range names {
		if p, ok := r.all[name]; ok {
			out = append(out, p)
		}
	}
	return out
}
