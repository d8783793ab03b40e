package imaging

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// DefaultContainerWidth is used when the client reports no container width.
const DefaultContainerWidth = 400

// Surface is a source image rasterized to the width of its display
// container. It is never mutated after FitWidth returns.
type Surface struct {
	Image        *image.NRGBA
	Scale        float64 // surface width / source width
	SourceWidth  int
	SourceHeight int
}

// Width returns the surface width in pixels.
func (s *Surface) Width() int { return s.Image.Bounds().Dx() }

// Height returns the surface height in pixels.
func (s *Surface) Height() int { return s.Image.Bounds().Dy() }

// FitWidth scales src so its width equals containerWidth and its height
// follows proportionally, rounded to the nearest pixel.
func FitWidth(src image.Image, containerWidth int) (*Surface, error) {
	if src == nil {
		return nil, errors.New("nil source image")
	}
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw == 0 || sh == 0 {
		return nil, errors.New("source image has no pixels")
	}
	if containerWidth <= 0 {
		containerWidth = DefaultContainerWidth
	}
	w, h := SurfaceSize(sw, sh, containerWidth)
	return &Surface{
		Image:        imaging.Resize(src, w, h, imaging.Linear),
		Scale:        float64(w) / float64(sw),
		SourceWidth:  sw,
		SourceHeight: sh,
	}, nil
}

// SurfaceSize returns the display dimensions for a sw x sh source shown in a
// container of the given width.
func SurfaceSize(sw, sh, containerWidth int) (int, int) {
	scale := float64(containerWidth) / float64(sw)
	h := int(math.Round(float64(sh) * scale))
	if h < 1 {
		h = 1
	}
	return containerWidth, h
}
