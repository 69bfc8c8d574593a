package imagerender

import (
	"fmt"

	"github.com/local/pdf2img/internal/apperr"
)

// Format is an output image format.
type Format int

const (
	PNG Format = iota
	JPEG
	GIF
	WebP
	PNM
	TIFF
	TGA
	BMP
	ICO
	HDR
	OpenEXR
	Farbfeld
	AVIF
	QOI
)

type formatInfo struct {
	name        string
	ext         string
	contentType string
}

var formats = [...]formatInfo{
	PNG:      {"png", "png", "image/png"},
	JPEG:     {"jpeg", "jpg", "image/jpeg"},
	GIF:      {"gif", "gif", "image/gif"},
	WebP:     {"webp", "webp", "image/webp"},
	PNM:      {"pnm", "pnm", "image/x-portable-anymap"},
	TIFF:     {"tiff", "tiff", "image/tiff"},
	TGA:      {"tga", "tga", "image/x-tga"},
	BMP:      {"bmp", "bmp", "image/bmp"},
	ICO:      {"ico", "ico", "image/vnd.microsoft.icon"},
	HDR:      {"hdr", "hdr", "image/vnd.radiance"},
	OpenEXR:  {"openexr", "exr", "image/x-exr"},
	Farbfeld: {"farbfeld", "ff", "image/x-farbfeld"},
	AVIF:     {"avif", "avif", "image/avif"},
	QOI:      {"qoi", "qoi", "image/qoi"},
}

// Formats lists every supported format.
func Formats() []Format {
	out := make([]Format, len(formats))
	for i := range formats {
		out[i] = Format(i)
	}
	return out
}

// ParseFormat maps a query value to a Format. Names match exactly and are
// lowercase; the empty string selects PNG.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return PNG, nil
	}
	for i, f := range formats {
		if f.name == s {
			return Format(i), nil
		}
	}
	return 0, apperr.New(apperr.UnsupportedFormat, fmt.Sprintf("unsupported format %q", s))
}

func (f Format) valid() bool { return f >= 0 && int(f) < len(formats) }

func (f Format) String() string {
	if !f.valid() {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formats[f].name
}

// Extension is the file extension used in object keys, without the dot.
func (f Format) Extension() string {
	if !f.valid() {
		return ""
	}
	return formats[f].ext
}

// ContentType is the MIME type stored with uploaded objects.
func (f Format) ContentType() string {
	if !f.valid() {
		return "application/octet-stream"
	}
	return formats[f].contentType
}
