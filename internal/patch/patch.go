package patch

import (
	"errors"
	"image"
	"image/draw"

	mcol "github.com/maax3v3/colormix/internal/color"
	"github.com/maax3v3/colormix/internal/imaging"
	"github.com/maax3v3/colormix/internal/pointer"
)

const (
	Size    = 150 // edge of the extracted square in surface pixels
	Quality = 90  // JPEG quality of the encoded payload
	MIME    = "image/jpeg"
)

// Payload is an encoded sample patch ready to be sent for analysis.
type Payload struct {
	Data []byte
	MIME string
	Rect image.Rectangle // crop rectangle in surface coordinates
	Mean mcol.RGBA       // average of the pixels inside the surface
}

// Rect returns the crop rectangle centered on p: origin (px-75, py-75).
func Rect(p pointer.Position) image.Rectangle {
	c := p.Pixel()
	origin := image.Pt(c.X-Size/2, c.Y-Size/2)
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(Size, Size))}
}

// Crop copies the Size x Size region around p into a new image. The region
// is not clamped: pixels outside the surface are left transparent.
func Crop(surface image.Image, p pointer.Position) (*image.NRGBA, image.Rectangle) {
	r := Rect(p)
	out := image.NewNRGBA(image.Rect(0, 0, Size, Size))
	if surface != nil {
		draw.Draw(out, out.Bounds(), surface, r.Min, draw.Src)
	}
	return out, r
}

// Extract crops the patch around p and encodes it as JPEG. Transparent
// pixels come out black since JPEG carries no alpha.
func Extract(surface image.Image, p pointer.Position) (Payload, error) {
	if surface == nil {
		return Payload{}, errors.New("nil surface")
	}
	img, r := Crop(surface, p)
	data, err := imaging.EncodeJPEG(img, Quality)
	if err != nil {
		return Payload{}, err
	}
	mean, _ := mcol.Mean(img)
	return Payload{Data: data, MIME: MIME, Rect: r, Mean: mean}, nil
}

// Reference encodes a white-balance reference image the same way as a patch.
func Reference(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil reference image")
	}
	return imaging.EncodeJPEG(img, Quality)
}
