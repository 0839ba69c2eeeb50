package profile

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Candidate gjson paths per canonical field, tried in order. Upstream
// variants rename fields (rank/ranking, points/score) and sometimes nest
// owns under an object.
var (
	nameKeys     = []string{"name", "username"}
	avatarKeys   = []string{"avatar", "avatar_url", "avatarUrl"}
	rankKeys     = []string{"rank", "ranking", "rank_name"}
	pointsKeys   = []string{"points", "score"}
	userOwnKeys  = []string{"user_owns", "owns.user", "userOwns"}
	rootOwnKeys  = []string{"system_owns", "root_owns", "owns.root", "owns.system"}
	nextRankKeys = []string{"next_rank", "nextRank"}
	progressKeys = []string{"current_rank_progress", "progress", "rank_progress"}
	countryKeys  = []string{"country", "country_name"}
	teamKeys     = []string{"team.name", "team", "team_name"}
)

// Normalize maps an upstream JSON document onto a Profile. It never fails:
// anything missing or of the wrong shape falls back to the defaults of Empty.
func Normalize(raw string) Profile {
	doc := gjson.Parse(raw)
	if env := doc.Get("profile"); env.IsObject() {
		doc = env
	}

	p := Empty()
	if v, ok := firstScalar(doc, nameKeys); ok {
		p.Name = v
	}
	if v, ok := firstScalar(doc, avatarKeys); ok {
		p.AvatarURL = v
	}
	if v, ok := firstScalar(doc, rankKeys); ok {
		p.Rank = v
	}
	if v, ok := firstScalar(doc, pointsKeys); ok {
		p.Points = v
	}
	if n, ok := firstInt(doc, userOwnKeys); ok && n > 0 {
		p.UserOwns = n
	}
	if n, ok := firstInt(doc, rootOwnKeys); ok && n > 0 {
		p.RootOwns = n
	}
	if v, ok := firstScalar(doc, nextRankKeys); ok {
		p.NextRank = v
	}
	if n, ok := firstInt(doc, progressKeys); ok {
		n = ClampPct(n)
		p.Progress = &n
	}
	if v, ok := firstScalar(doc, countryKeys); ok {
		p.Country = v
	}
	if v, ok := firstScalar(doc, teamKeys); ok {
		p.Team = v
	}
	return p
}

// firstScalar skips objects and arrays so that e.g. a team object is only
// matched through its team.name path. Numbers keep their JSON literal.
func firstScalar(doc gjson.Result, keys []string) (string, bool) {
	for _, k := range keys {
		r := doc.Get(k)
		switch r.Type {
		case gjson.String:
			if s := strings.TrimSpace(r.Str); s != "" {
				return s, true
			}
		case gjson.Number:
			return r.Raw, true
		case gjson.True, gjson.False:
			return r.Raw, true
		}
	}
	return "", false
}

// firstInt takes the first candidate that reads as a number. Strings such
// as "n/a" do not count, so the next candidate is tried.
func firstInt(doc gjson.Result, keys []string) (int, bool) {
	for _, k := range keys {
		r := doc.Get(k)
		switch r.Type {
		case gjson.Number:
			return int(r.Int()), true
		case gjson.String:
			f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
			if err != nil {
				continue
			}
			return int(f), true
		}
	}
	return 0, false
}
