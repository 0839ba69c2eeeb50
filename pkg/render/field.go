package render

import (
	"strconv"

	"github.com/drg911/htb-pro-card/pkg/profile"
	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

const (
	DefaultAvatarSize = 64
	MinAvatarSize     = 12
)

var fieldTags = map[string]bool{
	"span": true, "div": true, "p": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// FieldConfig renders one profile datum, optionally as a chip.
type FieldConfig struct {
	// Field is one of name, rank, points, user_owns, root_owns, progress,
	// next_rank, country, team, avatar. Defaults to rank.
	Field  string
	Label  string
	Prefix string
	Suffix string
	// Tag wraps the plain rendering: span, div, p or h1..h6.
	Tag        string
	Pill       bool
	Bg         string
	Fg         string
	ChipBorder string
	ClassName  string
	// Size bounds the avatar image.
	Size int
}

func (c FieldConfig) Render(r Result) Fragment {
	if r.Err != nil {
		return ErrorBox(r.Err.Error())
	}
	field := c.Field
	if field == "" {
		field = "rank"
	}
	vars := chipVars(c.Bg, c.Fg, c.ChipBorder)
	wrapper := []g.Node{h.Class(classes("htb-scope htb-profile-field", c.ClassName)), g.If(vars != "", h.Style(vars))}

	value, ok := r.Profile.Field(field)
	if field == "avatar" {
		if !ok {
			return ErrorBox("HTB: avatar not available.")
		}
		size := c.Size
		if size == 0 {
			size = DefaultAvatarSize
		}
		if size < MinAvatarSize {
			size = MinAvatarSize
		}
		radius := "8px"
		if c.Pill {
			radius = "50%"
		}
		px := strconv.Itoa(size) + "px"
		return h.Div(append(wrapper,
			h.Img(h.Src(value), h.Alt("HTB avatar"), h.Style("max-height:"+px+";max-width:"+px+";border-radius:"+radius+";")),
		)...)
	}
	if !ok || value == "" {
		value = profile.Placeholder
	}
	text := c.Prefix + value + c.Suffix

	if c.Pill {
		if c.Label != "" {
			text = c.Label + ": " + text
		}
		return h.Div(append(wrapper, chip(text))...)
	}

	tag := c.Tag
	if !fieldTags[tag] {
		tag = "span"
	}
	return g.El(tag, append(wrapper,
		g.If(c.Label != "", h.Strong(g.Text(c.Label+": "))),
		g.Text(text),
	)...)
}
