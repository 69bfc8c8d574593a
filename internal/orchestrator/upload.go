package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/pdf2img/internal/apperr"
	"github.com/local/pdf2img/internal/fingerprint"
	"github.com/local/pdf2img/internal/imagerender"
	"github.com/local/pdf2img/internal/metrics"
	"github.com/local/pdf2img/internal/storage"
)

// DefaultUploadConcurrency bounds the per-request fan-out when unset.
const DefaultUploadConcurrency = 8

// PageImage is an encoded page at a position of the selection.
type PageImage struct {
	Pos   int
	Image imagerender.Encoded
}

// ProduceFunc yields the encoded image for selection position pos.
type ProduceFunc func(ctx context.Context, pos int) (imagerender.Encoded, error)

// Coordinator uploads page images concurrently and returns their keys in
// selection order regardless of completion order.
type Coordinator struct {
	store storage.ObjectStore
	limit int
}

func NewCoordinator(store storage.ObjectStore, limit int) *Coordinator {
	if limit <= 0 {
		limit = DefaultUploadConcurrency
	}
	return &Coordinator{store: store, limit: limit}
}

// UploadAll uploads already encoded images. images[i].Pos must be i.
func (c *Coordinator) UploadAll(ctx context.Context, fp string, images []PageImage) ([]string, error) {
	return c.Run(ctx, fp, len(images), func(_ context.Context, pos int) (imagerender.Encoded, error) {
		return images[pos].Image, nil
	})
}

// Run produces and uploads n images with at most limit tasks in flight. The
// first failure cancels the remaining tasks; objects already written stay.
func (c *Coordinator) Run(ctx context.Context, fp string, n int, produce ProduceFunc) ([]string, error) {
	keys := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)

	for pos := 0; pos < n; pos++ {
		if gctx.Err() != nil {
			break
		}
		pos := pos
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := produce(gctx, pos)
			if err != nil {
				metrics.IncPage("failed")
				return err
			}
			key := fingerprint.Key(fp, pos, img.Extension())
			start := time.Now()
			if err := c.store.Put(gctx, key, img.Data, img.ContentType()); err != nil {
				metrics.IncPage("failed")
				return apperr.Page(apperr.UploadFailure, pos, err)
			}
			metrics.ObserveUpload(time.Since(start))
			metrics.AddUploadedBytes(img.Format.String(), len(img.Data))
			metrics.IncPage("success")
			log.Debug().Str("key", key).Int("pos", pos).Int("bytes", len(img.Data)).Msg("page uploaded")
			keys[pos] = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Parent cancelled before any task observed it.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
