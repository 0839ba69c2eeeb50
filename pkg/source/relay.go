package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// ErrRelayNotAllowed is returned for relay URLs outside the allowed domains.
var ErrRelayNotAllowed = errors.New("JSON relay URL not allowed")

// RelayPolicy restricts which hosts a caller-supplied relay URL may point at.
// An entry matches its registrable domain and every subdomain of it, so
// "example.com" allows https://relay.example.com/p.json. Entries that are
// not under a public suffix (IP addresses, localhost) must match the host
// exactly. An empty policy allows nothing.
type RelayPolicy struct {
	Domains []string
}

// Check returns nil when raw is an http(s) URL on an allowed domain.
func (p RelayPolicy) Check(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return fmt.Errorf("%w: %q is not an http(s) URL", ErrRelayNotAllowed, raw)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	domain, err := publicsuffix.Domain(host)
	if err != nil {
		domain = host
	}

	for _, d := range p.Domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if d == host || d == domain {
			return nil
		}
		// Subdomain entries such as "relay.example.com".
		if strings.HasSuffix(host, "."+d) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRelayNotAllowed, host)
}
