package mupdf

import (
	"errors"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/pdf2img/internal/document"
)

// nativeDPI is the PDF user-space resolution; scale 1.0 renders at this DPI.
const nativeDPI = 72.0

// Engine renders PDFs with MuPDF through go-fitz (no external tools needed).
type Engine struct{}

// NewEngine creates a go-fitz based engine.
func NewEngine() *Engine {
	disablePdfcpuConfig()
	return &Engine{}
}

func (e *Engine) Name() string { return "mupdf" }

// Close is a no-op; every document owns its own MuPDF context.
func (e *Engine) Close() error { return nil }

// Open decodes data. go-fitz cannot authenticate, so encrypted documents are
// decrypted with the supplied password before MuPDF sees them.
func (e *Engine) Open(data []byte, password string) (document.Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if errors.Is(err, fitz.ErrNeedsPassword) {
		// go-fitz hands back an open handle alongside this error
		if doc != nil {
			_ = doc.Close()
		}
		if password == "" {
			return nil, document.ErrPasswordRequired
		}
		plain, derr := decrypt(data, password)
		if derr != nil {
			return nil, derr
		}
		log.Debug().Int("encrypted_bytes", len(data)).Int("plain_bytes", len(plain)).Msg("decrypted PDF for MuPDF")
		doc, err = fitz.NewFromMemory(plain)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrMalformed, err)
	}
	return &fitzDoc{doc: doc}, nil
}

type fitzDoc struct {
	doc *fitz.Document
}

func (d *fitzDoc) NumPage() int { return d.doc.NumPage() }

func (d *fitzDoc) Render(index int, scale float64) (image.Image, error) {
	img, err := d.doc.ImageDPI(index, nativeDPI*scale)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	log.Debug().Int("page", index).Int("width", b.Dx()).Int("height", b.Dy()).Float64("scale", scale).Msg("rendered page with MuPDF")
	return img, nil
}

func (d *fitzDoc) Close() error { return d.doc.Close() }
