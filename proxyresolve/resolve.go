// Package proxyresolve turns a short proxy token ("us", "nordvpn:ca1066")
// into a full proxy URI using whichever configured Provider recognizes it,
// so a resolved URI with embedded credentials never has to leave the
// client's machine.
package proxyresolve

import (
	"fmt"
	"regexp"
	"strings"
)

// Provider resolves a country/city/server query into a proxy URI. Each
// concrete provider (WindscribeVPN, NordVPN, ...) wraps a different proxy
// service's credential and server-map format.
type Provider interface {
	Name() string
	GetProxy(query string) (string, error)
}

var (
	explicitURI   = regexp.MustCompile(`^https?://`)
	providerQuery = regexp.MustCompile(`^[a-zA-Z]+:.+$`)
	countryQuery  = regexp.MustCompile(`^[a-zA-Z]{2}(?:\d+)?$`)
)

// Resolve resolves token against providers, matching the original's
// provider:country / bare-country-code / explicit-URI precedence.
func Resolve(token string, providers []Provider) (string, error) {
	if token == "" {
		return "", nil
	}
	if explicitURI.MatchString(token) {
		return token, nil
	}

	requestedProvider := ""
	query := token
	if providerQuery.MatchString(token) {
		parts := strings.SplitN(token, ":", 2)
		requestedProvider, query = parts[0], parts[1]
	}

	if !countryQuery.MatchString(query) {
		return token, nil
	}
	query = strings.ToLower(query)

	if requestedProvider != "" {
		for _, p := range providers {
			if !strings.EqualFold(p.Name(), requestedProvider) {
				continue
			}
			uri, err := p.GetProxy(query)
			if err != nil {
				return "", fmt.Errorf("proxyresolve: %s: %w", p.Name(), err)
			}
			if uri == "" {
				return "", fmt.Errorf("proxyresolve: provider %s had no proxy for %q", requestedProvider, query)
			}
			return uri, nil
		}
		names := make([]string, len(providers))
		for i, p := range providers {
			names[i] = p.Name()
		}
		return "", fmt.Errorf("proxyresolve: provider %q not recognized, available: %v", requestedProvider, names)
	}

	for _, p := range providers {
		uri, err := p.GetProxy(query)
		if err == nil && uri != "" {
			return uri, nil
		}
	}
	return "", fmt.Errorf("proxyresolve: no provider had a proxy for %q", query)
}
