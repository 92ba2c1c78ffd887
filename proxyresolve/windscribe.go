package proxyresolve

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// Windscribe resolves tokens against a WindscribeVPN-style service-credential
// proxy, the one concrete provider carried over from the original's
// proxies/windscribevpn.py.
type Windscribe struct {
	username, password string
	serverMap          map[string]string
}

// NewWindscribe builds a Windscribe provider. username and password are the
// service's Service Credentials (not login credentials); both may be
// base64-encoded, matching the original's tolerant decode-or-keep-raw logic.
func NewWindscribe(username, password string, serverMap map[string]string) (*Windscribe, error) {
	if username == "" {
		return nil, fmt.Errorf("proxyresolve: windscribe: no username provided")
	}
	if password == "" {
		return nil, fmt.Errorf("proxyresolve: windscribe: no password provided")
	}
	return &Windscribe{
		username:  tryDecode(username),
		password:  tryDecode(password),
		serverMap: serverMap,
	}, nil
}

func tryDecode(value string) string {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return value
	}
	return string(decoded)
}

func (w *Windscribe) Name() string { return "windscribevpn" }

// GetProxy builds an HTTPS proxy URI for a server matched by query, which
// may be a bare country code ("us") or "country:city" ("ca:toronto").
func (w *Windscribe) GetProxy(query string) (string, error) {
	query = strings.ToLower(query)
	country, city, _ := strings.Cut(query, ":")

	key := country
	if city != "" {
		key = country + ":" + city
	}
	host, ok := w.serverMap[key]
	if !ok {
		host, ok = w.serverMap[country]
	}
	if !ok {
		return "", nil
	}

	return fmt.Sprintf("https://%s:%s@%s", url.QueryEscape(w.username), url.QueryEscape(w.password), host), nil
}
