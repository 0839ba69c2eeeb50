package render

import (
	"net/url"
	"strconv"

	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

const (
	DefaultBadgeSize = 64
	MinBadgeSize     = 24
)

// BadgeConfig renders the hosted HTB badge image. It needs only an
// identifier, never a profile.
type BadgeConfig struct {
	Size      int
	Rounded   bool
	ClassName string
}

func DefaultBadgeConfig() BadgeConfig {
	return BadgeConfig{Size: DefaultBadgeSize, Rounded: true}
}

func (c BadgeConfig) Render(r Result) Fragment {
	if r.Err != nil {
		return ErrorBox(r.Err.Error())
	}
	if r.Identifier == "" {
		return ErrorBox("HTB: missing user id. Set a global ID in the settings, or fill the badge attributes.")
	}
	size := c.Size
	if size == 0 {
		size = DefaultBadgeSize
	}
	if size < MinBadgeSize {
		size = MinBadgeSize
	}
	style := "max-height:" + strconv.Itoa(size) + "px;"
	if c.Rounded {
		style += "border-radius:8px;"
	}
	return h.Div(g.If(c.ClassName != "", h.Class(c.ClassName)),
		h.Img(h.Src(BadgeURLBase+url.PathEscape(r.Identifier)), h.Alt("HTB badge"), h.Style(style)),
	)
}
