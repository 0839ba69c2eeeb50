package render

import (
	"net/url"
	"strconv"
	"strings"

	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

const cardStyle = "display:flex;align-items:center;gap:16px;background:#0e1714;border:1px solid #123;border-radius:12px;padding:16px;color:#cde5db;"

// CardConfig renders the full profile card.
type CardConfig struct {
	ShowBadge     bool
	ShowRank      bool
	ShowPoints    bool
	ShowOwns      bool
	ShowNext      bool
	ShowProgress  bool
	ShowCTA       bool
	ShowAvatar    bool
	AvatarRounded bool
	CTALabel      string
	// CTAURL defaults to the public profile page.
	CTAURL    string
	ClassName string
	Theme     Theme
}

func DefaultCardConfig() CardConfig {
	return CardConfig{
		ShowBadge:     true,
		ShowRank:      true,
		ShowPoints:    true,
		ShowOwns:      true,
		ShowNext:      true,
		ShowProgress:  true,
		ShowCTA:       true,
		AvatarRounded: true,
		CTALabel:      "View Profile",
	}
}

func (c CardConfig) Render(r Result) Fragment {
	if r.Err != nil {
		return ErrorBox(r.Err.Error())
	}
	id := r.Identifier
	if id == "" {
		id = "0"
	}
	p := r.Profile

	ctaURL := strings.TrimSpace(c.CTAURL)
	if ctaURL == "" {
		ctaURL = ProfileURLBase + url.PathEscape(id)
	}
	ctaLabel := c.CTALabel
	if ctaLabel == "" {
		ctaLabel = "View Profile"
	}
	avatarRadius := "8px"
	if c.AvatarRounded {
		avatarRadius = "50%"
	}

	return h.Div(h.Class(classes("htb-card", c.ClassName)), h.Style(cardStyle+c.Theme.vars()),
		g.If(c.ShowAvatar && p.AvatarURL != "",
			h.Div(h.Style("flex:0 0 auto;line-height:0;"),
				h.Img(h.Src(p.AvatarURL), h.Alt("HTB avatar for "+p.Name),
					h.Style("display:block;height:64px;width:64px;object-fit:cover;border-radius:"+avatarRadius+";border:1px solid #17342b;")),
			),
		),
		h.Div(h.Class("htb-main"),
			h.Div(h.Class("htb-name"), g.Text(p.Name)),
			h.Div(h.Class("htb-chips"),
				g.If(c.ShowRank, chip("Rank: "+p.Rank)),
				g.If(c.ShowPoints, chip("Points: "+p.Points)),
				g.If(c.ShowOwns, chip("Owns: "+strconv.Itoa(p.UserOwns)+" user • "+strconv.Itoa(p.RootOwns)+" root")),
				g.If(c.ShowNext && p.NextRank != "", chip("Next: "+p.NextRank)),
				g.If(c.ShowProgress && p.Progress != nil, chip("Progress: "+strconv.Itoa(p.ProgressPct())+"%")),
			),
			g.If(c.ShowCTA,
				h.Div(h.Class("htb-cta"),
					h.A(h.Href(ctaURL), h.Target("_blank"), h.Rel("noopener"),
						g.Attr("aria-label", "View HTB profile of "+p.Name), g.Text(ctaLabel)),
				),
			),
		),
		g.If(c.ShowBadge,
			h.Div(h.Style("flex:0 0 auto;"),
				h.Img(h.Src(BadgeURLBase+url.PathEscape(id)), h.Alt("HTB badge"), h.Style("display:block;max-height:64px;border-radius:8px;")),
			),
		),
	)
}

func chip(text string) Fragment {
	return h.Span(h.Class("htb-chip"), g.Text(text))
}
