// Package pdfium renders PDFs with PDFium compiled to WebAssembly (pure Go, no CGo).
package pdfium

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	pdfiumerrors "github.com/klippa-app/go-pdfium/errors"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
	"github.com/rs/zerolog/log"

	"github.com/local/pdf2img/internal/document"
)

const nativeDPI = 72.0

// Options configures the WebAssembly worker pool.
type Options struct {
	// Instances is the number of PDFium runtimes; each open document holds one.
	Instances  int
	AcquireTTL time.Duration
}

// Engine hands out one PDFium instance per open document.
type Engine struct {
	pool    pdfium.Pool
	acquire time.Duration
}

// NewEngine initialises the WebAssembly pool.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Instances <= 0 {
		opts.Instances = 1
	}
	if opts.AcquireTTL <= 0 {
		opts.AcquireTTL = 30 * time.Second
	}
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  opts.Instances,
		MaxTotal: opts.Instances,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}
	log.Info().Int("instances", opts.Instances).Msg("PDFium WebAssembly pool ready")
	return &Engine{pool: pool, acquire: opts.AcquireTTL}, nil
}

func (e *Engine) Name() string { return "pdfium" }

// Close shuts the pool down.
func (e *Engine) Close() error {
	if e.pool == nil {
		return nil
	}
	err := e.pool.Close()
	e.pool = nil
	return err
}

// Open loads data into a pooled instance; the instance is released when the
// document is closed.
func (e *Engine) Open(data []byte, password string) (document.Document, error) {
	instance, err := e.pool.GetInstance(e.acquire)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get PDFium instance: %v", document.ErrUnavailable, err)
	}

	req := &requests.OpenDocument{File: &data}
	if password != "" {
		req.Password = &password
	}
	doc, err := instance.OpenDocument(req)
	if err != nil {
		_ = instance.Close()
		if isPasswordError(err) {
			if password == "" {
				return nil, fmt.Errorf("%w: %v", document.ErrPasswordRequired, err)
			}
			return nil, fmt.Errorf("%w: %v", document.ErrInvalidPassword, err)
		}
		return nil, fmt.Errorf("%w: %v", document.ErrMalformed, err)
	}

	count, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{Document: doc.Document})
	if err != nil {
		_, _ = instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		_ = instance.Close()
		return nil, fmt.Errorf("%w: page count: %v", document.ErrMalformed, err)
	}

	return &pdfiumDoc{instance: instance, doc: doc.Document, pages: count.PageCount}, nil
}

func isPasswordError(err error) bool {
	if errors.Is(err, pdfiumerrors.ErrPassword) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "password")
}

type pdfiumDoc struct {
	instance pdfium.Pdfium
	doc      references.FPDF_DOCUMENT
	pages    int
}

func (d *pdfiumDoc) NumPage() int { return d.pages }

func (d *pdfiumDoc) Render(index int, scale float64) (image.Image, error) {
	dpi := int(math.Round(nativeDPI * scale))
	if dpi < 1 {
		dpi = 1
	}
	res, err := d.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: dpi,
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{Document: d.doc, Index: index},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", index, err)
	}
	// The result image is backed by instance memory freed by Cleanup.
	img := imaging.Clone(res.Result.Image)
	res.Cleanup()
	return img, nil
}

func (d *pdfiumDoc) Close() error {
	_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: d.doc})
	if cerr := d.instance.Close(); err == nil {
		err = cerr
	}
	return err
}
