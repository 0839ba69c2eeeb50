// Package render turns profile lookups into HTML fragments. Every renderer
// produces either complete markup or the shared error box, never both.
package render

import (
	"strconv"
	"strings"

	"github.com/drg911/htb-pro-card/pkg/profile"
	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

const (
	ProfileURLBase = "https://app.hackthebox.com/profile/"
	BadgeURLBase   = "https://www.hackthebox.com/badge/image/"

	errorBoxStyle = "padding:10px;border-radius:8px;background:#101815;color:#f66;border:1px solid #3a1212;"
)

// Result is what a renderer consumes: a resolved identifier and either a
// profile or the error that prevented one.
type Result struct {
	Identifier string
	Profile    profile.Profile
	Err        error
}

// Fragment is a renderable HTML node.
type Fragment = g.Node

type Renderer interface {
	Render(r Result) Fragment
}

// ErrorBox is the fragment shown in place of any presentation that failed.
func ErrorBox(msg string) Fragment {
	return h.Div(h.Class("htb-card"), h.Style(errorBoxStyle), g.Text(msg))
}

// String renders f to a string.
func String(f Fragment) string {
	var b strings.Builder
	if err := f.Render(&b); err != nil {
		return ""
	}
	return b.String()
}

// Theme holds the CSS custom properties exposed on card-like wrappers.
// Empty strings and nil sizes are omitted.
type Theme struct {
	ChipBg     string
	ChipFg     string
	ChipBorder string
	CTABg      string
	CTAFg      string
	CTABorder  string
	Border     string
	Gap        *int
	Padding    *int
	Radius     *int
}

func (t Theme) vars() string {
	var b strings.Builder
	for _, kv := range [][2]string{
		{"--htb-chip-bg", t.ChipBg},
		{"--htb-chip-fg", t.ChipFg},
		{"--htb-chip-border", t.ChipBorder},
		{"--htb-cta-bg", t.CTABg},
		{"--htb-cta-fg", t.CTAFg},
		{"--htb-cta-border", t.CTABorder},
		{"--htb-border", t.Border},
	} {
		writeVar(&b, kv[0], kv[1])
	}
	for _, kv := range []struct {
		name string
		v    *int
	}{{"--htb-gap", t.Gap}, {"--htb-padding", t.Padding}, {"--htb-radius", t.Radius}} {
		if kv.v != nil {
			writeVar(&b, kv.name, strconv.Itoa(*kv.v)+"px")
		}
	}
	return b.String()
}

// chipVars is the subset used by the single-chip renderers.
func chipVars(bg, fg, border string) string {
	return Theme{ChipBg: bg, ChipFg: fg, ChipBorder: border}.vars()
}

func writeVar(b *strings.Builder, name, value string) {
	if v := cssValue(value); v != "" {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte(';')
	}
}

// cssValue drops characters that could end the declaration or the attribute.
func cssValue(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case ';', '{', '}', '<', '>', '"', '\'', '\\':
			return -1
		}
		return r
	}, s))
}

func classes(base, extra string) string {
	if extra = strings.TrimSpace(extra); extra != "" {
		return base + " " + extra
	}
	return base
}
