package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdf2img/internal/apperr"
	"github.com/local/pdf2img/internal/document"
	"github.com/local/pdf2img/internal/fingerprint"
	"github.com/local/pdf2img/internal/imagerender"
	"github.com/local/pdf2img/internal/metrics"
)

const (
	MinScale     = 0.1
	MaxScale     = 10.0
	DefaultScale = 1.0
)

// Request is one validated conversion.
type Request struct {
	Data     []byte
	Format   imagerender.Format
	Scale    float64
	Password string
	// Pages is the parsed page expression; nil selects every page.
	Pages []RangeToken
}

// Converter runs decode, selection, render, encode and upload for a request.
type Converter struct {
	engine  document.Engine
	encoder *imagerender.Encoder
	uploads *Coordinator
}

func NewConverter(engine document.Engine, encoder *imagerender.Encoder, uploads *Coordinator) *Converter {
	return &Converter{engine: engine, encoder: encoder, uploads: uploads}
}

// CheckScale rejects scales outside [MinScale, MaxScale].
func CheckScale(scale float64) error {
	// NaN fails both comparisons
	if !(scale >= MinScale && scale <= MaxScale) {
		return apperr.New(apperr.InvalidScale, fmt.Sprintf("scale must be between %g and %g", MinScale, MaxScale))
	}
	return nil
}

// Convert returns the object keys of the selected pages in selection order.
// No object is written unless the document decodes and the selection resolves.
func (c *Converter) Convert(ctx context.Context, req Request) ([]string, error) {
	start := time.Now()
	keys, err := c.convert(ctx, req)
	result := "ok"
	if err != nil {
		result = string(apperr.KindOf(err))
	}
	metrics.ObserveConversion(req.Format.String(), result, time.Since(start))
	return keys, err
}

func (c *Converter) convert(ctx context.Context, req Request) ([]string, error) {
	if err := CheckScale(req.Scale); err != nil {
		return nil, err
	}

	sess, err := document.Open(c.engine, req.Data, req.Password)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	if sess.PageCount() == 0 {
		return nil, apperr.New(apperr.MalformedDocument, "document has no pages")
	}
	sel, err := Resolve(req.Pages, sess.PageCount())
	if err != nil {
		return nil, err
	}

	fp := fingerprint.Compute(req.Data, req.Scale, req.Password)
	l := log.With().Str("fingerprint", fp).Str("format", req.Format.String()).Logger()
	l.Info().Int("doc_pages", sess.PageCount()).Int("selected", len(sel)).Float64("scale", req.Scale).Msg("conversion started")

	started := time.Now()
	keys, err := c.uploads.Run(ctx, fp, len(sel), func(ctx context.Context, pos int) (imagerender.Encoded, error) {
		if err := ctx.Err(); err != nil {
			return imagerender.Encoded{}, err
		}
		t := time.Now()
		img, err := sess.RenderPage(sel[pos], req.Scale)
		if err != nil {
			return imagerender.Encoded{}, apperr.Page(apperr.RenderFailure, pos, err)
		}
		metrics.ObserveRender(time.Since(t))

		t = time.Now()
		enc, err := c.encoder.Encode(img, req.Format)
		if err != nil {
			return imagerender.Encoded{}, apperr.Page(apperr.EncodeFailure, pos, err)
		}
		metrics.ObserveEncode(time.Since(t))
		l.Debug().Int("pos", pos).Int("page", sel[pos]).Int("bytes", len(enc.Data)).Msg("page encoded")
		return enc, nil
	})
	if err != nil {
		l.Warn().Err(err).Msg("conversion failed")
		return nil, err
	}
	l.Info().Int("images", len(keys)).Dur("duration", time.Since(started)).Msg("conversion completed")
	return keys, nil
}
