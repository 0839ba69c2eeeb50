package profile

import "strconv"

const (
	DefaultName = "HTB User"
	Placeholder = "—"
)

// Profile is the canonical, renderer-agnostic view of an HTB user.
type Profile struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar"`
	Rank      string `json:"rank"`
	// Points keeps the upstream literal ("1200", "12.5") or Placeholder.
	Points   string `json:"points"`
	UserOwns int    `json:"user_owns"`
	RootOwns int    `json:"root_owns"`
	NextRank string `json:"next_rank"`
	// Progress is nil when upstream did not report rank progress.
	Progress *int   `json:"progress,omitempty"`
	Country  string `json:"country"`
	Team     string `json:"team"`
}

// Empty returns a Profile holding only the documented defaults.
func Empty() Profile {
	return Profile{
		Name:    DefaultName,
		Rank:    Placeholder,
		Points:  Placeholder,
		Country: Placeholder,
		Team:    Placeholder,
	}
}

// ProgressPct returns the progress clamped to [0,100], 0 when absent.
func (p Profile) ProgressPct() int {
	if p.Progress == nil {
		return 0
	}
	return ClampPct(*p.Progress)
}

// Field returns the display value of a named field and whether it is set.
// Names follow the upstream snake_case keys: name, rank, points, user_owns,
// root_owns, progress, next_rank, country, team, avatar.
func (p Profile) Field(name string) (string, bool) {
	switch name {
	case "name":
		return p.Name, p.Name != ""
	case "rank":
		return p.Rank, p.Rank != ""
	case "points":
		return p.Points, p.Points != ""
	case "user_owns":
		return strconv.Itoa(p.UserOwns), true
	case "root_owns":
		return strconv.Itoa(p.RootOwns), true
	case "progress":
		if p.Progress == nil {
			return "", false
		}
		return strconv.Itoa(*p.Progress), true
	case "next_rank":
		return p.NextRank, p.NextRank != ""
	case "country":
		return p.Country, p.Country != ""
	case "team":
		return p.Team, p.Team != ""
	case "avatar":
		return p.AvatarURL, p.AvatarURL != ""
	}
	return "", false
}

// ClampPct bounds a percentage to [0,100].
func ClampPct(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
