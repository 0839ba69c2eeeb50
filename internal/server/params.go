package server

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/drg911/htb-pro-card/internal/utils"
	"github.com/drg911/htb-pro-card/pkg/render"
	"github.com/drg911/htb-pro-card/pkg/service"
)

// Params wraps request attributes. The same keys are accepted as HTTP
// query parameters and as CLI --opt key=value pairs.
type Params struct {
	url.Values
}

func (p Params) str(key, def string) string {
	if _, ok := p.Values[key]; !ok {
		return def
	}
	return p.Get(key)
}

func (p Params) boolean(key string, def bool) bool {
	v := strings.TrimSpace(p.Get(key))
	if v == "" {
		return def
	}
	return utils.Trueish(v)
}

func (p Params) integer(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(p.Get(key)))
	if err != nil {
		return def
	}
	return n
}

func (p Params) optInt(key string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(p.Get(key)))
	if err != nil {
		return nil
	}
	return &n
}

// Request extracts id, json_url, ttl (seconds) and badge.
func (p Params) Request() service.Request {
	req := service.Request{
		ID:      p.Get("id"),
		JSONURL: p.Get("json_url"),
		TTL:     time.Duration(p.integer("ttl", 0)) * time.Second,
	}
	if v := strings.TrimSpace(p.Get("badge")); v != "" {
		b := utils.Trueish(v)
		req.Badge = &b
	}
	return req
}

func (p Params) Card(showBadge bool) render.CardConfig {
	d := render.DefaultCardConfig()
	return render.CardConfig{
		ShowBadge:     showBadge,
		ShowRank:      p.boolean("show_rank", d.ShowRank),
		ShowPoints:    p.boolean("show_points", d.ShowPoints),
		ShowOwns:      p.boolean("show_owns", d.ShowOwns),
		ShowNext:      p.boolean("show_next", d.ShowNext),
		ShowProgress:  p.boolean("show_progress", d.ShowProgress),
		ShowCTA:       p.boolean("show_cta", d.ShowCTA),
		ShowAvatar:    p.boolean("show_avatar", d.ShowAvatar),
		AvatarRounded: p.boolean("avatar_rounded", d.AvatarRounded),
		CTALabel:      p.str("cta_label", d.CTALabel),
		CTAURL:        p.Get("cta_url"),
		ClassName:     p.Get("class"),
		Theme: render.Theme{
			ChipBg:     p.Get("chip_bg"),
			ChipFg:     p.Get("chip_fg"),
			ChipBorder: p.Get("chip_border"),
			CTABg:      p.Get("cta_bg"),
			CTAFg:      p.Get("cta_fg"),
			CTABorder:  p.Get("cta_border"),
			Border:     p.Get("border"),
			Gap:        p.optInt("gap"),
			Padding:    p.optInt("padding"),
			Radius:     p.optInt("radius"),
		},
	}
}

func (p Params) Badge() render.BadgeConfig {
	d := render.DefaultBadgeConfig()
	return render.BadgeConfig{
		Size:      p.integer("size", d.Size),
		Rounded:   p.boolean("rounded", d.Rounded),
		ClassName: p.Get("class"),
	}
}

func (p Params) RankChip() render.RankChipConfig {
	return render.RankChipConfig{
		Bg:         p.Get("bg"),
		Fg:         p.Get("fg"),
		ChipBorder: p.Get("chip_border"),
		ClassName:  p.Get("class"),
	}
}

func (p Params) Progress() render.ProgressConfig {
	d := render.DefaultProgressConfig()
	return render.ProgressConfig{
		Mode:         render.ProgressMode(p.str("mode", string(d.Mode))),
		NumPrefix:    p.Get("num_prefix"),
		NumSuffix:    p.str("num_suffix", d.NumSuffix),
		NumSize:      p.integer("num_size", d.NumSize),
		NumColor:     p.str("num_color", d.NumColor),
		BarColor:     p.str("bar_color", d.BarColor),
		TrackColor:   p.str("track_color", d.TrackColor),
		BarHeight:    p.integer("bar_height", d.BarHeight),
		BarRadius:    p.integer("bar_radius", d.BarRadius),
		CircleSize:   p.integer("circle_size", d.CircleSize),
		CircleStroke: p.integer("circle_stroke", d.CircleStroke),
		CircleBar:    p.str("circle_bar", d.CircleBar),
		CircleTrack:  p.str("circle_track", d.CircleTrack),
		CircleText:   p.str("circle_text", d.CircleText),
	}
}

func (p Params) Field() render.FieldConfig {
	return render.FieldConfig{
		Field:      p.str("field", "rank"),
		Label:      p.Get("label"),
		Prefix:     p.Get("prefix"),
		Suffix:     p.Get("suffix"),
		Tag:        p.str("tag", "span"),
		Pill:       p.boolean("pill", false),
		Bg:         p.Get("bg"),
		Fg:         p.Get("fg"),
		ChipBorder: p.Get("chip_border"),
		ClassName:  p.Get("class"),
		Size:       p.integer("size", render.DefaultAvatarSize),
	}
}
