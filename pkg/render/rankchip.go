package render

import (
	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

// RankChipConfig renders a single "Rank: X" chip.
type RankChipConfig struct {
	Bg         string
	Fg         string
	ChipBorder string
	ClassName  string
}

func (c RankChipConfig) Render(r Result) Fragment {
	if r.Err != nil {
		return ErrorBox(r.Err.Error())
	}
	vars := chipVars(c.Bg, c.Fg, c.ChipBorder)
	return h.Div(h.Class(classes("htb-scope htb-rank-chip", c.ClassName)), g.If(vars != "", h.Style(vars)),
		chip("Rank: "+r.Profile.Rank),
	)
}
