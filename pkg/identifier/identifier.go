package identifier

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// ErrMissingIdentifier is returned when neither the caller nor the global
// settings provide a user id.
var ErrMissingIdentifier = errors.New("HTB: missing user id (or JSON URL). Set a global ID in the settings, or fill the card attributes")

var profileURLRe = regexp.MustCompile(`(?i)^https?://[^/]+/profile/(\d+)`)

// Resolve trims raw, falls back to globalDefault and extracts the numeric id
// from a profile URL such as https://app.hackthebox.com/profile/2651542.
// It returns "" when no identifier is left.
func Resolve(raw, globalDefault string) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		id = strings.TrimSpace(globalDefault)
	}
	if m := profileURLRe.FindStringSubmatch(id); m != nil {
		id = m[1]
	}
	return id
}

// Require is Resolve for callers that cannot proceed without an id.
func Require(raw, globalDefault string) (string, error) {
	id := Resolve(raw, globalDefault)
	if id == "" {
		return "", ErrMissingIdentifier
	}
	return id, nil
}

// IsProfileURL reports whether s embeds a profile id.
func IsProfileURL(s string) bool {
	return profileURLRe.MatchString(strings.TrimSpace(s))
}

// ProfileHost returns the registrable domain of a profile URL, e.g.
// "hackthebox.com" for https://app.hackthebox.com/profile/1.
func ProfileHost(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !IsProfileURL(s) {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	domain, err := publicsuffix.Domain(strings.ToLower(u.Hostname()))
	if err != nil {
		return u.Hostname(), true
	}
	return domain, true
}
