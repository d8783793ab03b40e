package swatch

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FaceFont draws text with a fixed-size font.Face. The size argument is
// ignored.
type FaceFont struct {
	Face font.Face
}

// NewBasicFont returns a FaceFont using the 7x13 Latin-1 face, which covers
// accented color names.
func NewBasicFont() *FaceFont {
	return &FaceFont{Face: basicfont.Face7x13}
}

func (f *FaceFont) DrawString(img *image.RGBA, text string, cx, cy int, col color.Color, _ int) {
	w, _ := f.MeasureString(text, 0)
	m := f.Face.Metrics()
	// baseline so the glyph box is vertically centered on cy
	baseline := cy + (m.Ascent.Ceil()-m.Descent.Ceil())/2
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: f.Face,
		Dot:  fixed.P(cx-w/2, baseline),
	}
	d.DrawString(text)
}

func (f *FaceFont) MeasureString(text string, _ int) (width, height int) {
	if text == "" {
		return 0, 0
	}
	m := f.Face.Metrics()
	return font.MeasureString(f.Face, text).Ceil(), m.Height.Ceil()
}
