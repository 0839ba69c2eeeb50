package profile

import (
	"encoding/json"
	"reflect"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestNormalizeScenarios(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Profile
	}{
		{
			name: "labs basic profile envelope",
			raw: `{"profile":{"id":2651542,"name":"drg","avatar":"/storage/avatars/a.png","rank":"Pro Hacker",
				"points":1200,"user_owns":30,"system_owns":12,"next_rank":"Elite Hacker",
				"current_rank_progress":42,"country_name":"Portugal","team":{"id":7,"name":"0xTeam"}}}`,
			expected: Profile{
				Name: "drg", AvatarURL: "/storage/avatars/a.png", Rank: "Pro Hacker", Points: "1200",
				UserOwns: 30, RootOwns: 12, NextRank: "Elite Hacker", Progress: intPtr(42),
				Country: "Portugal", Team: "0xTeam",
			},
		},
		{
			name: "flat relay with renamed fields",
			raw:  `{"username":"relay","ranking":"Hacker","score":"880","owns":{"user":"5","root":3},"progress":7,"team_name":"crew"}`,
			expected: Profile{
				Name: "relay", Rank: "Hacker", Points: "880", UserOwns: 5, RootOwns: 3,
				Progress: intPtr(7), Country: Placeholder, Team: "crew",
			},
		},
		{
			name:     "empty object gives defaults",
			raw:      `{}`,
			expected: Empty(),
		},
		{
			name:     "garbage gives defaults",
			raw:      `not json at all`,
			expected: Empty(),
		},
		{
			name: "nulls are skipped in favour of later candidates",
			raw:  `{"name":null,"username":"second","rank":null,"ranking":"Noob","points":null,"user_owns":null}`,
			expected: Profile{
				Name: "second", Rank: "Noob", Points: Placeholder, Country: Placeholder, Team: Placeholder,
			},
		},
		{
			name: "negative counts clamp to zero and progress to range",
			raw:  `{"user_owns":-4,"system_owns":-1,"current_rank_progress":137}`,
			expected: Profile{
				Name: DefaultName, Rank: Placeholder, Points: Placeholder, Country: Placeholder, Team: Placeholder,
				Progress: intPtr(100),
			},
		},
		{
			name: "non-numeric progress is absent",
			raw:  `{"current_rank_progress":"n/a","user_owns":"lots"}`,
			expected: Profile{
				Name: DefaultName, Rank: Placeholder, Points: Placeholder, Country: Placeholder, Team: Placeholder,
			},
		},
		{
			name: "non-numeric candidate falls through to the next key",
			raw:  `{"current_rank_progress":"n/a","progress":"42.7","user_owns":"","userOwns":4}`,
			expected: Profile{
				Name: DefaultName, Rank: Placeholder, Points: Placeholder, Country: Placeholder, Team: Placeholder,
				UserOwns: 4, Progress: intPtr(42),
			},
		},
		{
			name: "team object without name falls through",
			raw:  `{"team":{"id":1},"team_name":"fallback"}`,
			expected: Profile{
				Name: DefaultName, Rank: Placeholder, Points: Placeholder, Country: Placeholder, Team: "fallback",
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			out := Normalize(tc.raw)
			if !reflect.DeepEqual(out, tc.expected) {
				t.Fatalf("input:\n%s\nexpected:\n%s\nactual:\n%s", tc.raw, mustJSON(tc.expected), mustJSON(out))
			}
		})
	}
}

func TestNormalizeNeverLeavesBlankDisplayFields(t *testing.T) {
	inputs := []string{``, `null`, `[]`, `{"profile":null}`, `{"profile":{}}`, `{"rank":""}`, `{"points":{}}`}
	for _, in := range inputs {
		p := Normalize(in)
		if p.Name == "" || p.Rank == "" || p.Points == "" || p.Country == "" || p.Team == "" {
			t.Fatalf("blank display field for %q: %+v", in, p)
		}
		if p.UserOwns < 0 || p.RootOwns < 0 {
			t.Fatalf("negative owns for %q: %+v", in, p)
		}
	}
}

func TestProfileField(t *testing.T) {
	p := Normalize(`{"name":"x","user_owns":3}`)
	if v, ok := p.Field("user_owns"); !ok || v != "3" {
		t.Fatalf("user_owns = %q, %v", v, ok)
	}
	if _, ok := p.Field("progress"); ok {
		t.Fatalf("progress should be unset")
	}
	if _, ok := p.Field("avatar"); ok {
		t.Fatalf("avatar should be unset")
	}
	if _, ok := p.Field("nope"); ok {
		t.Fatalf("unknown fields are unset")
	}
}

func mustJSON(v any) string {
	data, _ := json.MarshalIndent(v, "", "  ")
	return string(data)
}
