package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"io"

	ico "github.com/biessek/golang-ico"
	"github.com/disintegration/imaging"
	"github.com/ftrvxmtrx/tga"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	"github.com/rs/zerolog/log"
	"github.com/spakin/netpbm"
	"github.com/xfmoulet/qoi"
)

// DefaultQuality is used for lossy formats when no quality is configured.
const DefaultQuality = 90

// DefaultContrast is the contrast adjustment, in percent, applied to every page.
const DefaultContrast = 0.1

// icoMaxSide is the largest dimension an ICO entry can describe.
const icoMaxSide = 256

// Encoded is one page encoded in its output format.
type Encoded struct {
	Data   []byte
	Format Format
}

// Extension of the encoded image.
func (e Encoded) Extension() string { return e.Format.Extension() }

// ContentType of the encoded image.
func (e Encoded) ContentType() string { return e.Format.ContentType() }

type encodeFunc func(w io.Writer, img image.Image, quality int) error

// encoders is the dispatch table, one entry per Format.
var encoders = [...]encodeFunc{
	PNG:      encodeImaging(imaging.PNG),
	JPEG:     encodeImaging(imaging.JPEG),
	GIF:      encodeImaging(imaging.GIF),
	TIFF:     encodeImaging(imaging.TIFF),
	BMP:      encodeImaging(imaging.BMP),
	WebP:     encodeWebP,
	AVIF:     encodeAVIF,
	PNM:      encodePNM,
	TGA:      func(w io.Writer, img image.Image, _ int) error { return tga.Encode(w, img) },
	ICO:      encodeICO,
	QOI:      func(w io.Writer, img image.Image, _ int) error { return qoi.Encode(w, img) },
	HDR:      func(w io.Writer, img image.Image, _ int) error { return encodeHDR(w, img) },
	OpenEXR:  func(w io.Writer, img image.Image, _ int) error { return encodeEXR(w, img) },
	Farbfeld: func(w io.Writer, img image.Image, _ int) error { return encodeFarbfeld(w, img) },
}

// Encoder turns rendered pages into image bytes.
type Encoder struct {
	quality  int
	contrast float64
}

// Options configures an Encoder.
type Options struct {
	Quality  int
	Contrast float64
}

// NewEncoder creates an Encoder. A non-positive quality falls back to DefaultQuality.
func NewEncoder(opts Options) *Encoder {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	return &Encoder{quality: opts.Quality, contrast: opts.Contrast}
}

// Encode converts img to format f.
func (e *Encoder) Encode(img image.Image, f Format) (Encoded, error) {
	if !f.valid() {
		return Encoded{}, fmt.Errorf("unknown format %d", int(f))
	}
	if img == nil || img.Bounds().Empty() {
		return Encoded{}, fmt.Errorf("empty image")
	}
	if e.contrast != 0 {
		img = imaging.AdjustContrast(img, e.contrast)
	}

	var buf bytes.Buffer
	if err := encoders[f](&buf, img, e.quality); err != nil {
		return Encoded{}, fmt.Errorf("encode %s: %w", f, err)
	}

	b := img.Bounds()
	log.Debug().
		Str("format", f.String()).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Int("size", buf.Len()).
		Msg("encoded page")

	return Encoded{Data: buf.Bytes(), Format: f}, nil
}

func encodeImaging(format imaging.Format) encodeFunc {
	return func(w io.Writer, img image.Image, quality int) error {
		return imaging.Encode(w, img, format, imaging.JPEGQuality(quality))
	}
}

func encodeWebP(w io.Writer, img image.Image, quality int) error {
	return webp.Encode(w, img, webp.Options{Quality: quality})
}

func encodeAVIF(w io.Writer, img image.Image, quality int) error {
	return avif.Encode(w, img, avif.Options{Quality: quality, QualityAlpha: quality, Speed: 8})
}

func encodePNM(w io.Writer, img image.Image, _ int) error {
	return netpbm.Encode(w, img, &netpbm.EncodeOptions{Format: netpbm.PPM, MaxValue: 255})
}

// encodeICO fits the page into the largest icon size before encoding.
func encodeICO(w io.Writer, img image.Image, _ int) error {
	b := img.Bounds()
	if b.Dx() > icoMaxSide || b.Dy() > icoMaxSide {
		img = imaging.Fit(img, icoMaxSide, icoMaxSide, imaging.Lanczos)
	}
	return ico.Encode(w, img)
}
