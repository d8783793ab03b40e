// Package swatch renders an analysis result as a printable color card: a
// block of the identified color labelled with its hex code, followed by one
// bar per base pigment of the mixing recipe.
package swatch

import (
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/maax3v3/colormix/internal/analysis"
	mcol "github.com/maax3v3/colormix/internal/color"
	"github.com/maax3v3/colormix/internal/imaging"
)

// Config holds card layout settings.
type Config struct {
	Width       int // card width
	BlockHeight int // height of the color block
	RowHeight   int // height of one recipe row
	Margin      int // outer margin around the recipe rows
	LabelWidth  int // room for the pigment name before its bar
	FontSize    int
}

// Fonts are the renderers used on a card: Digits for hex codes and
// percentages, Labels for color and pigment names.
type Fonts struct {
	Digits FontRenderer
	Labels FontRenderer
}

// DefaultFonts returns the built-in bitmap digits and the basic label face.
func DefaultFonts() Fonts {
	return Fonts{Digits: NewBitmapFont(), Labels: NewBasicFont()}
}

// DefaultConfig returns the layout used for downloaded cards.
func DefaultConfig() Config {
	return Config{
		Width:       360,
		BlockHeight: 120,
		RowHeight:   36,
		Margin:      16,
		LabelWidth:  72,
		FontSize:    14,
	}
}

var (
	background = color.RGBA{255, 255, 255, 255}
	track      = color.RGBA{235, 235, 235, 255}
	border     = color.RGBA{100, 100, 100, 255}
	unknownHex = mcol.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// Render draws the card for res. An unparseable hex code is shown as an
// unlabelled gray block.
func Render(res analysis.Result, fonts Fonts, cfg Config) *image.RGBA {
	shares := res.Pigments()
	out := image.NewRGBA(image.Rect(0, 0, cfg.Width, Height(len(shares), cfg)))
	fillRect(out, out.Bounds(), background)

	block, err := mcol.ParseHex(res.HexCode)
	label := block.Hex()
	if err != nil {
		block = unknownHex
		label = ""
	}
	fillRect(out, image.Rect(0, 0, cfg.Width, cfg.BlockHeight), block.ToStdColor())
	textColor := color.Color(color.Black)
	if !block.IsLight() {
		textColor = color.White
	}
	fonts.Digits.DrawString(out, upperHex(label), cfg.Width/2, cfg.BlockHeight/2-cfg.FontSize/2, textColor, cfg.FontSize*2)
	fonts.Labels.DrawString(out, res.ColorName, cfg.Width/2, cfg.BlockHeight/2+cfg.FontSize+cfg.FontSize/2, textColor, cfg.FontSize)

	radius := cfg.RowHeight / 4
	labelX := cfg.Margin + 2*radius + cfg.Margin/2
	barX := barStart(cfg)
	textW, _ := fonts.Digits.MeasureString("100%", cfg.FontSize)
	barW := cfg.Width - barX - cfg.Margin - textW - cfg.Margin/2
	barH := cfg.RowHeight / 3

	for i, s := range shares {
		cy := cfg.BlockHeight + cfg.Margin + i*cfg.RowHeight + cfg.RowHeight/2
		swatch := s.Pigment.Swatch().ToStdColor()
		drawFilledCircle(out, cfg.Margin+radius, cy, radius, swatch)
		drawCircleBorder(out, cfg.Margin+radius, cy, radius, border)
		fonts.Labels.DrawString(out, s.Name, labelX+cfg.LabelWidth/2, cy, color.Black, cfg.FontSize)

		top := cy - barH/2
		fillRect(out, image.Rect(barX, top, barX+barW, top+barH), track)
		filled := int(math.Round(float64(barW) * clampPercent(s.Percentage) / 100))
		fillRect(out, image.Rect(barX, top, barX+filled, top+barH), swatch)

		pct := FormatPercent(s.Percentage)
		w, _ := fonts.Digits.MeasureString(pct, cfg.FontSize)
		fonts.Digits.DrawString(out, pct, cfg.Width-cfg.Margin-w/2, cy, color.Black, cfg.FontSize)
	}
	return out
}

// barStart is the x where recipe bars begin.
func barStart(cfg Config) int {
	radius := cfg.RowHeight / 4
	return cfg.Margin + 2*radius + cfg.Margin/2 + cfg.LabelWidth
}

// Height returns the card height for a recipe of n items.
func Height(n int, cfg Config) int {
	if n == 0 {
		return cfg.BlockHeight
	}
	return cfg.BlockHeight + 2*cfg.Margin + n*cfg.RowHeight
}

// PNG renders the card with the default layout and encodes it as PNG.
func PNG(res analysis.Result) ([]byte, error) {
	return imaging.EncodePNG(Render(res, DefaultFonts(), DefaultConfig()))
}

// FormatPercent renders p like "45%" or "12.5%".
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

func clampPercent(p float64) float64 {
	return math.Max(0, math.Min(100, p))
}

func upperHex(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func fillRect(img *image.RGBA, r image.Rectangle, col color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}

func drawFilledCircle(img *image.RGBA, cx, cy, radius int, col color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				px, py := cx+dx, cy+dy
				if px >= 0 && px < img.Bounds().Dx() && py >= 0 && py < img.Bounds().Dy() {
					img.SetRGBA(px, py, col)
				}
			}
		}
	}
}

func drawCircleBorder(img *image.RGBA, cx, cy, radius int, col color.RGBA) {
	for angle := 0.0; angle < 2*math.Pi; angle += 0.01 {
		px := cx + int(math.Round(float64(radius)*math.Cos(angle)))
		py := cy + int(math.Round(float64(radius)*math.Sin(angle)))
		if px >= 0 && px < img.Bounds().Dx() && py >= 0 && py < img.Bounds().Dy() {
			img.SetRGBA(px, py, col)
		}
	}
}
