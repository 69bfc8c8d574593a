package orchestrator

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/local/pdf2img/internal/apperr"
	"github.com/local/pdf2img/internal/imagerender"
	"github.com/local/pdf2img/internal/metrics"
	"github.com/local/pdf2img/internal/statuscheck"
)

// DefaultBodyLimit is the request body limit when none is configured.
const DefaultBodyLimit = 250 << 20

// Admitter reserves a conversion slot without blocking.
type Admitter interface {
	Allow(ctx context.Context) (func(), bool)
}

type Dependencies struct {
	Converter *Converter
	Admission Admitter
	Status    *statuscheck.Checker
	Metrics   http.Handler

	Token     string
	BodyLimit int64
	Timeout   time.Duration
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.BodyLimit <= 0 {
		deps.BodyLimit = DefaultBodyLimit
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /ready", o.handleReady)
	if o.deps.Metrics != nil {
		mux.Handle("GET /metrics", o.deps.Metrics)
	}
	mux.HandleFunc("POST /{$}", o.handleConvert)
}

type convertResp struct {
	Success bool     `json:"success"`
	Images  []string `json:"images"`
}

type errorResp struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Page    *int   `json:"page,omitempty"`
}

func (o *Orchestrator) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if err := o.authorize(r); err != nil {
		WriteError(w, r, err)
		return
	}
	format, err := imagerender.ParseFormat(q.Get("format"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	scale, err := parseScale(q.Get("scale"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	pages, err := ParseExpr(q.Get("pages"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	data, err := readDocument(w, r, o.deps.BodyLimit)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if o.deps.Admission != nil {
		release, ok := o.deps.Admission.Allow(r.Context())
		if !ok {
			metrics.Rejected()
			WriteError(w, r, apperr.New(apperr.Busy, "too many conversions in progress, retry later"))
			return
		}
		metrics.Admitted()
		defer func() { release(); metrics.Released() }()
	}

	ctx := r.Context()
	if o.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deps.Timeout)
		defer cancel()
	}

	keys, err := o.deps.Converter.Convert(ctx, Request{
		Data:     data,
		Format:   format,
		Scale:    scale,
		Password: q.Get("password"),
		Pages:    pages,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convertResp{Success: true, Images: keys})
}

func (o *Orchestrator) authorize(r *http.Request) error {
	if o.deps.Token == "" {
		return nil
	}
	got := r.URL.Query().Get("token")
	if got == "" {
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			got = bearer
		}
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(o.deps.Token)) != 1 {
		return apperr.New(apperr.Unauthorized, "missing or invalid token")
	}
	return nil
}

func parseScale(s string) (float64, error) {
	if s == "" {
		return DefaultScale, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.InvalidScale, "scale must be a number", err)
	}
	if err := CheckScale(v); err != nil {
		return 0, err
	}
	return v, nil
}

// readDocument returns the bytes of the "file" form field, or of the first
// uploaded file when no field has that name.
func readDocument(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidRequest, "request must be multipart/form-data", err)
	}
	var fallback []byte
	found := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, bodyError(err)
		}
		named := part.FormName() == "file"
		if !named && (found || part.FileName() == "") {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, bodyError(err)
		}
		if named {
			return nonEmpty(data)
		}
		fallback, found = data, true
	}
	if !found {
		return nil, apperr.New(apperr.InvalidRequest, "form does not contain a file field")
	}
	return nonEmpty(fallback)
}

func nonEmpty(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, apperr.New(apperr.InvalidRequest, "uploaded file is empty")
	}
	return data, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Wrap(apperr.BodyTooLarge, "request body exceeds limit of "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes", err)
	}
	return apperr.Wrap(apperr.InvalidRequest, "failed to read PDF file from request", err)
}

// WriteError writes err as a JSON failure body with the status of its kind.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	resp := errorResp{Kind: string(kind), Message: err.Error()}
	if e, ok := apperr.As(err); ok && e.Page >= 0 {
		p := e.Page
		resp.Page = &p
	}
	l := hlog.FromRequest(r)
	if kind.Client() {
		l.Warn().Err(err).Str("kind", string(kind)).Msg("request rejected")
	} else {
		l.Error().Err(err).Str("kind", string(kind)).Msg("conversion failed")
	}
	if kind == apperr.Internal {
		resp.Message = "Internal Server Error"
	}
	writeJSON(w, kind.Status(), resp)
}

func (o *Orchestrator) handleReady(w http.ResponseWriter, r *http.Request) {
	if o.deps.Status == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	sum, ok := o.deps.Status.Check(r.Context())
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}
