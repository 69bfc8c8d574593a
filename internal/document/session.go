// Package document owns the decode lifetime of one uploaded PDF and
// serializes page rendering on it.
package document

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/pdf2img/internal/apperr"
	"github.com/local/pdf2img/internal/filetype"
)

// Errors engines wrap so Open can classify decode failures.
var (
	ErrPasswordRequired = errors.New("document is encrypted and needs a password")
	ErrInvalidPassword  = errors.New("incorrect document password")
	ErrMalformed        = errors.New("document cannot be parsed")
	// ErrUnavailable marks engine-side capacity failures unrelated to the input.
	ErrUnavailable = errors.New("render engine unavailable")
)

// Engine decodes PDF bytes into renderable documents.
type Engine interface {
	Name() string
	Open(data []byte, password string) (Document, error)
	Close() error
}

// Document is a decoded PDF as exposed by an engine.
type Document interface {
	NumPage() int
	// Render rasterizes page index at scale times its native 72 DPI size.
	Render(index int, scale float64) (image.Image, error)
	Close() error
}

// Session is one request's decoded document. Rendering is a critical
// section: engines are not assumed safe for concurrent calls on one handle.
type Session struct {
	mu     sync.Mutex
	doc    Document
	pages  int
	closed bool
}

// Open sniffs and decodes data with engine.
func Open(engine Engine, data []byte, password string) (*Session, error) {
	if len(data) == 0 {
		return nil, apperr.New(apperr.MalformedDocument, "empty document")
	}
	if !filetype.IsPDF(data) {
		return nil, apperr.New(apperr.MalformedDocument, "file is not a PDF")
	}

	doc, err := engine.Open(data, password)
	if err != nil {
		switch {
		case errors.Is(err, ErrPasswordRequired):
			return nil, apperr.Wrap(apperr.DecryptionFailure, "document requires a password", err)
		case errors.Is(err, ErrInvalidPassword):
			return nil, apperr.Wrap(apperr.DecryptionFailure, "incorrect document password", err)
		case errors.Is(err, ErrMalformed):
			return nil, apperr.Wrap(apperr.MalformedDocument, "failed to open PDF", err)
		case errors.Is(err, ErrUnavailable):
			return nil, apperr.Wrap(apperr.Busy, "render engine is busy", err)
		default:
			return nil, apperr.Wrap(apperr.Internal, "failed to open PDF", err)
		}
	}

	s := &Session{doc: doc, pages: doc.NumPage()}
	log.Debug().Str("engine", engine.Name()).Int("pages", s.pages).Int("bytes", len(data)).Msg("document opened")
	return s, nil
}

// PageCount returns the number of pages in the document.
func (s *Session) PageCount() int { return s.pages }

// RenderPage rasterizes the 0-based page index. Callers pass indices from a
// bounds-checked selection.
func (s *Session) RenderPage(index int, scale float64) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("render page %d: session closed", index)
	}
	if index < 0 || index >= s.pages {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", index, s.pages)
	}
	img, err := s.doc.Render(index, scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", index, err)
	}
	return img, nil
}

// Close releases the decoded document. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.doc.Close()
}
