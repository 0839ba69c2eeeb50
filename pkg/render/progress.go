package render

import (
	"math"
	"strconv"

	"github.com/drg911/htb-pro-card/pkg/profile"
	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"
)

type ProgressMode string

const (
	ModeNumber ProgressMode = "number"
	ModeBar    ProgressMode = "bar"
	ModeCircle ProgressMode = "circle"
)

// ProgressConfig renders rank progress as a number, a bar or an SVG ring.
// An empty Mode means bar; any other unknown mode draws the ring.
type ProgressConfig struct {
	Mode ProgressMode

	NumPrefix string
	NumSuffix string
	NumSize   int
	NumColor  string

	BarColor   string
	TrackColor string
	BarHeight  int
	BarRadius  int

	CircleSize   int
	CircleStroke int
	CircleBar    string
	CircleTrack  string
	CircleText   string
}

func DefaultProgressConfig() ProgressConfig {
	return ProgressConfig{
		Mode:         ModeBar,
		NumSuffix:    "%",
		NumSize:      32,
		NumColor:     "#cde5db",
		BarColor:     "#1aa36b",
		TrackColor:   "#10251e",
		BarHeight:    10,
		BarRadius:    999,
		CircleSize:   120,
		CircleStroke: 10,
		CircleBar:    "#1aa36b",
		CircleTrack:  "#10251e",
		CircleText:   "#cde5db",
	}
}

func (c ProgressConfig) Render(r Result) Fragment {
	if r.Err != nil {
		return ErrorBox(r.Err.Error())
	}
	c = c.withDefaults()
	pct := profile.ClampPct(r.Profile.ProgressPct())

	switch c.Mode {
	case ModeNumber:
		style := "font-weight:700;display:inline-block;color:" + cssValue(c.NumColor) + ";font-size:" + strconv.Itoa(c.NumSize) + "px;"
		return h.Div(h.Class("htb-progress htb-progress--number"), h.Style(style),
			g.Text(c.NumPrefix+strconv.Itoa(pct)+c.NumSuffix))
	case ModeBar, "":
		outer := "background:" + cssValue(c.TrackColor) + ";border-radius:" + strconv.Itoa(c.BarRadius) + "px;overflow:hidden;height:" + strconv.Itoa(c.BarHeight) + "px;width:100%;"
		inner := "background:" + cssValue(c.BarColor) + ";height:100%;width:" + strconv.Itoa(pct) + "%;"
		return h.Div(h.Class("htb-progress htb-progress--bar"), h.Style(outer),
			h.Div(h.Style(inner)))
	default:
		return h.Div(h.Class("htb-progress htb-progress--circle"), h.Style("display:inline-block;line-height:0"),
			c.ring(pct))
	}
}

// Ring geometry for a progress circle.
type Ring struct {
	Radius        float64
	Center        float64
	Circumference float64
	Dash          float64
	Gap           float64
}

// CircleGeometry computes r = (size-stroke)/2 and a dash covering pct of the
// circumference.
func CircleGeometry(size, stroke, pct int) Ring {
	r := float64(size-stroke) / 2
	circ := 2 * math.Pi * r
	dash := float64(profile.ClampPct(pct)) / 100 * circ
	return Ring{
		Radius:        r,
		Center:        float64(size) / 2,
		Circumference: circ,
		Dash:          dash,
		Gap:           circ - dash,
	}
}

func (c ProgressConfig) ring(pct int) Fragment {
	geo := CircleGeometry(c.CircleSize, c.CircleStroke, pct)
	size := strconv.Itoa(c.CircleSize)
	stroke := strconv.Itoa(c.CircleStroke)
	cx, r := num(geo.Center), num(geo.Radius)

	circle := func(color string, extra ...g.Node) g.Node {
		attrs := []g.Node{g.Attr("cx", cx), g.Attr("cy", cx), g.Attr("r", r),
			g.Attr("stroke", cssValue(color)), g.Attr("stroke-width", stroke), g.Attr("fill", "none")}
		return g.El("circle", append(attrs, extra...)...)
	}

	return g.El("svg", g.Attr("width", size), g.Attr("height", size), g.Attr("viewBox", "0 0 "+size+" "+size),
		circle(c.CircleTrack),
		circle(c.CircleBar,
			g.Attr("stroke-dasharray", num(geo.Dash)+" "+num(geo.Gap)),
			g.Attr("transform", "rotate(-90 "+cx+" "+cx+")"),
			g.Attr("stroke-linecap", "round"),
		),
		g.El("text", g.Attr("x", "50%"), g.Attr("y", "50%"), g.Attr("dominant-baseline", "middle"), g.Attr("text-anchor", "middle"),
			g.Attr("fill", cssValue(c.CircleText)), h.Style("font-weight:700;font-size:"+strconv.Itoa(c.CircleSize/4)+"px"),
			g.Text(strconv.Itoa(pct)+"%")),
	)
}

func (c ProgressConfig) withDefaults() ProgressConfig {
	d := DefaultProgressConfig()
	if c.NumSize <= 0 {
		c.NumSize = d.NumSize
	}
	if c.NumColor == "" {
		c.NumColor = d.NumColor
	}
	if c.BarColor == "" {
		c.BarColor = d.BarColor
	}
	if c.TrackColor == "" {
		c.TrackColor = d.TrackColor
	}
	if c.BarHeight <= 0 {
		c.BarHeight = d.BarHeight
	}
	if c.BarRadius < 0 {
		c.BarRadius = d.BarRadius
	}
	if c.CircleSize <= 0 {
		c.CircleSize = d.CircleSize
	}
	if c.CircleStroke <= 0 || c.CircleStroke >= c.CircleSize {
		c.CircleStroke = d.CircleStroke
		if c.CircleStroke >= c.CircleSize {
			c.CircleStroke = 1
		}
	}
	if c.CircleBar == "" {
		c.CircleBar = d.CircleBar
	}
	if c.CircleTrack == "" {
		c.CircleTrack = d.CircleTrack
	}
	if c.CircleText == "" {
		c.CircleText = d.CircleText
	}
	return c
}

// num formats SVG coordinates with at most two decimals.
func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
