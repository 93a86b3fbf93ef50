package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"

	"contentgate/internal/config"
)

// textScale enlarges the 7x13 raster face at zoom 1.
const textScale = 2.0

var ink = color.NRGBA{R: 64, G: 64, B: 64}

// Compositor burns a tiled, rotated, low-opacity text pattern into page pixels.
type Compositor struct {
	angle    float64
	opacity  float64
	spacingX float64
	spacingY float64
}

// NewCompositor builds a compositor from the watermark config.
func NewCompositor(wm config.WatermarkConfig) *Compositor {
	sx, sy := wm.SpacingX, wm.SpacingY
	if sx <= 0 {
		sx = 220
	}
	if sy <= 0 {
		sy = 160
	}
	return &Compositor{
		angle:    wm.AngleDeg * math.Pi / 180,
		opacity:  wm.Opacity,
		spacingX: float64(sx),
		spacingY: float64(sy),
	}
}

func (c *Compositor) tile(text string) *image.RGBA {
	face := basicfont.Face7x13
	m := face.Metrics()
	d := &font.Drawer{Face: face}
	w := d.MeasureString(text).Ceil()

	img := image.NewRGBA(image.Rect(0, 0, w+2, m.Height.Ceil()+2))
	fill := ink
	fill.A = uint8(math.Round(c.opacity * 255))
	d.Dst = img
	d.Src = image.NewUniform(fill)
	d.Dot = fixed.P(1, 1+m.Ascent.Ceil())
	d.DrawString(text)
	return img
}

// Apply composites text over dst in place. Spacing and glyph size follow zoom, so the
// pattern density is the same at every scale.
func (c *Compositor) Apply(dst *image.RGBA, text string, zoom float64) {
	if text == "" || c.opacity <= 0 {
		return
	}
	if zoom <= 0 {
		zoom = 1
	}
	src := c.tile(text)
	sr := src.Bounds()
	cx, cy := float64(sr.Dx())/2, float64(sr.Dy())/2

	k := textScale * zoom
	sin, cos := math.Sincos(c.angle)
	a, b := k*cos, -k*sin
	d, e := k*sin, k*cos

	stepX, stepY := c.spacingX*zoom, c.spacingY*zoom
	bounds := dst.Bounds()
	row := 0
	for y := float64(bounds.Min.Y) - stepY; y < float64(bounds.Max.Y)+stepY; y += stepY {
		offset := 0.0
		if row%2 == 1 {
			offset = stepX / 2
		}
		for x := float64(bounds.Min.X) - stepX + offset; x < float64(bounds.Max.X)+stepX; x += stepX {
			// Maps the tile center onto (x, y), rotated and scaled.
			s2d := f64.Aff3{
				a, b, x - (a*cx + b*cy),
				d, e, y - (d*cx + e*cy),
			}
			draw.ApproxBiLinear.Transform(dst, s2d, src, sr, draw.Over, nil)
		}
		row++
	}
}
