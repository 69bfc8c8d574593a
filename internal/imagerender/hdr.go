package imagerender

import (
	"image"
	"image/color"
	"io"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
)

// encodeHDR writes Radiance RGBE with channels mapped to 0..1 from the
// page's straight-alpha components.
func encodeHDR(w io.Writer, img image.Image) error {
	b := img.Bounds()
	m := hdr.NewRGB(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			m.Set(x, y, hdrcolor.RGB{
				R: float64(c.R) / 0xffff,
				G: float64(c.G) / 0xffff,
				B: float64(c.B) / 0xffff,
			})
		}
	}
	return rgbe.Encode(w, m)
}
