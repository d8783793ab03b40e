package magnifier

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/maax3v3/colormix/internal/pointer"
)

const (
	Size      = 120 // edge of the rendered view in pixels
	Zoom      = 3   // magnification factor
	DotRadius = 2   // radius of the sample point marker
	Offset    = 20  // gap between the view's bottom edge and the pointer
)

var (
	crosshairColor = color.NRGBA{255, 255, 255, 204}
	dotColor       = color.NRGBA{255, 0, 0, 255}
)

// View is one rendered magnifier frame together with where it goes on screen.
type View struct {
	Image  *image.NRGBA
	Source image.Rectangle // region of the surface that was magnified
	Origin image.Point     // top-left of the view in surface coordinates
}

// New renders the magnifier for p and computes its placement.
func New(src image.Image, p pointer.Position) View {
	return View{
		Image:  Render(src, p),
		Source: SourceRect(p),
		Origin: Place(p),
	}
}

// SourceRect returns the square region of the surface shown by the
// magnifier, centered on p. It may extend past the surface bounds.
func SourceRect(p pointer.Position) image.Rectangle {
	half := Size / Zoom / 2
	c := p.Pixel()
	return image.Rect(c.X-half, c.Y-half, c.X+half, c.Y+half)
}

// Place returns the top-left corner of the view so that it sits centered
// above the pointer without covering the sampled point.
func Place(p pointer.Position) image.Point {
	c := p.Pixel()
	return image.Pt(c.X-Size/2, c.Y-Size-Offset)
}

// Render produces the Size x Size magnified view around p with a crosshair
// and a dot marking the exact sample point. Source pixels outside src stay
// transparent. The output depends only on its inputs.
func Render(src image.Image, p pointer.Position) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, Size, Size))

	if src != nil {
		region := SourceRect(p)
		crop := image.NewNRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
		draw.Draw(crop, crop.Bounds(), src, region.Min, draw.Src)
		xdraw.NearestNeighbor.Scale(out, out.Bounds(), crop, crop.Bounds(), xdraw.Src, nil)
	}

	drawCrosshair(out)
	drawFilledCircle(out, Size/2, Size/2, DotRadius, dotColor)
	return out
}

// drawCrosshair blends one vertical and one horizontal line through the
// center. The intersection pixel is painted once.
func drawCrosshair(img *image.NRGBA) {
	c := Size / 2
	u := image.NewUniform(crosshairColor)
	draw.Draw(img, image.Rect(c, 0, c+1, Size), u, image.Point{}, draw.Over)
	draw.Draw(img, image.Rect(0, c, c, c+1), u, image.Point{}, draw.Over)
	draw.Draw(img, image.Rect(c+1, c, Size, c+1), u, image.Point{}, draw.Over)
}

func drawFilledCircle(img *image.NRGBA, cx, cy, radius int, col color.NRGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				px, py := cx+dx, cy+dy
				if px >= 0 && px < img.Bounds().Dx() && py >= 0 && py < img.Bounds().Dy() {
					img.SetNRGBA(px, py, col)
				}
			}
		}
	}
}
