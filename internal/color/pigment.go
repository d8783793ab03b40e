package color

import "strings"

// Pigment is one of the base colorants every mixing recipe is composed from.
type Pigment string

// The fixed base palette for polyethylene inks.
const (
	White  Pigment = "white"
	Black  Pigment = "black"
	Yellow Pigment = "yellow"
	Red    Pigment = "red"
	Blue   Pigment = "blue"
)

// Palette lists the base pigments in the order they are presented.
var Palette = []Pigment{White, Black, Yellow, Red, Blue}

var pigmentSwatches = map[Pigment]RGBA{
	White:  {255, 255, 255, 255},
	Black:  {0, 0, 0, 255},
	Yellow: {255, 221, 0, 255},
	Red:    {213, 0, 28, 255},
	Blue:   {0, 56, 168, 255},
}

// Names the remote model may answer with, lowercased. Portuguese names are
// included since that is the default response language.
var pigmentAliases = map[string]Pigment{
	"white":    White,
	"branco":   White,
	"black":    Black,
	"preto":    Black,
	"yellow":   Yellow,
	"amarelo":  Yellow,
	"red":      Red,
	"vermelho": Red,
	"blue":     Blue,
	"azul":     Blue,
}

// ParsePigment maps a free-form base color name onto the palette.
func ParsePigment(name string) (Pigment, bool) {
	p, ok := pigmentAliases[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Swatch returns the display color of the pigment. Unknown pigments are gray.
func (p Pigment) Swatch() RGBA {
	if c, ok := pigmentSwatches[p]; ok {
		return c
	}
	return RGBA{128, 128, 128, 255}
}
