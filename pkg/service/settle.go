package service

import (
	"strings"
	"time"

	"github.com/drg911/htb-pro-card/pkg/identifier"
	"github.com/drg911/htb-pro-card/pkg/source"
)

// GlobalDefaults are the site-wide settings a request falls back to.
type GlobalDefaults struct {
	Identifier string
	TTL        time.Duration
	ShowBadge  bool
	JSONURL    string
}

// Request carries per-request overrides. Zero values mean "use default".
type Request struct {
	ID      string
	JSONURL string
	TTL     time.Duration
	// Badge overrides GlobalDefaults.ShowBadge when set.
	Badge *bool
}

// Settled is a request with defaults applied and the identifier resolved.
type Settled struct {
	Identifier string
	JSONURL    string
	TTL        time.Duration
	ShowBadge  bool
}

// Settle merges req over defaults. It fails with ErrMissingIdentifier when
// neither an identifier nor a relay URL is available.
func Settle(req Request, defaults GlobalDefaults) (Settled, error) {
	st := Settled{
		Identifier: identifier.Resolve(req.ID, defaults.Identifier),
		JSONURL:    strings.TrimSpace(req.JSONURL),
		TTL:        req.TTL,
		ShowBadge:  defaults.ShowBadge,
	}
	if st.JSONURL == "" {
		st.JSONURL = strings.TrimSpace(defaults.JSONURL)
	}
	if st.TTL <= 0 {
		st.TTL = defaults.TTL
	}
	st.TTL = EffectiveTTL(st.TTL)
	if req.Badge != nil {
		st.ShowBadge = *req.Badge
	}
	if st.Identifier == "" && st.JSONURL == "" {
		return st, identifier.ErrMissingIdentifier
	}
	return st, nil
}

// SelectSource picks the relay when a JSON URL is present, the Labs API
// otherwise.
func SelectSource(jsonURL string, labs source.RemoteAPI, relayTimeout time.Duration) source.Config {
	if u := strings.TrimSpace(jsonURL); u != "" {
		return source.StaticJSON{URL: u, Timeout: relayTimeout}
	}
	return labs
}
