package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/local/pdf2img/internal/apperr"
	"github.com/local/pdf2img/internal/document"
	"github.com/local/pdf2img/internal/fingerprint"
	"github.com/local/pdf2img/internal/imagerender"
	"github.com/local/pdf2img/internal/storage"
)

var testPDF = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

// fakeEngine opens any PDF as a document with a fixed page count; when
// password is set the document behaves as encrypted.
type fakeEngine struct {
	pages      int
	password   string
	renderErr  int          // page index that fails to render, -1 for none
	blankPages map[int]bool // page indices that render as an empty image

	mu       sync.Mutex
	rendered []int
}

func (e *fakeEngine) Name() string { return "fake" }
func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) Open(data []byte, password string) (document.Document, error) {
	if e.password != "" {
		if password == "" {
			return nil, document.ErrPasswordRequired
		}
		if password != e.password {
			return nil, document.ErrInvalidPassword
		}
	}
	return &fakeDoc{e: e}, nil
}

func (e *fakeEngine) renders() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.rendered...)
}

type fakeDoc struct{ e *fakeEngine }

func (d *fakeDoc) NumPage() int { return d.e.pages }
func (d *fakeDoc) Close() error { return nil }

func (d *fakeDoc) Render(index int, scale float64) (image.Image, error) {
	if index == d.e.renderErr {
		return nil, errors.New("corrupt content stream")
	}
	d.e.mu.Lock()
	d.e.rendered = append(d.e.rendered, index)
	d.e.mu.Unlock()
	if d.e.blankPages[index] {
		return image.NewRGBA(image.Rectangle{}), nil
	}
	side := int(20 * scale)
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for i := range img.Pix {
		img.Pix[i] = byte(index * 40)
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img, nil
}

type harness struct {
	engine *fakeEngine
	store  *storage.Memory
	srv    *httptest.Server
}

func newHarness(t *testing.T, engine *fakeEngine, mutate func(*Dependencies)) *harness {
	t.Helper()
	st := storage.NewMemory()
	deps := Dependencies{
		Converter: NewConverter(engine, imagerender.NewEncoder(imagerender.Options{}), NewCoordinator(st, 4)),
		BodyLimit: 1 << 20,
	}
	if mutate != nil {
		mutate(&deps)
	}
	mux := http.NewServeMux()
	New(deps).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &harness{engine: engine, store: st, srv: srv}
}

func (h *harness) post(t *testing.T, query string, body []byte) (int, map[string]any) {
	t.Helper()
	return h.postParts(t, query, nil, formPart{field: "file", filename: "doc.pdf", data: body})
}

type formPart struct {
	field    string
	filename string
	data     []byte
}

// postParts sends parts in order as a multipart form with optional headers.
func (h *harness) postParts(t *testing.T, query string, header http.Header, parts ...formPart) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		var (
			fw  io.Writer
			err error
		)
		if p.filename != "" {
			fw, err = mw.CreateFormFile(p.field, p.filename)
		} else {
			fw, err = mw.CreateFormField(p.field)
		}
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(p.data)
	}
	_ = mw.Close()

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/?"+query, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func images(t *testing.T, out map[string]any) []string {
	t.Helper()
	raw, ok := out["images"].([]any)
	if !ok {
		t.Fatalf("no images in %v", out)
	}
	keys := make([]string, len(raw))
	for i, v := range raw {
		keys[i] = v.(string)
	}
	return keys
}

func TestConvertAllPages(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 3, renderErr: -1}, nil)

	code, out := h.post(t, "format=png", testPDF)
	if code != http.StatusOK || out["success"] != true {
		t.Fatalf("status %d: %v", code, out)
	}
	fp := fingerprint.Compute(testPDF, 1.0, "")
	want := []string{fp + "-0.png", fp + "-1.png", fp + "-2.png"}
	if got := images(t, out); !reflect.DeepEqual(got, want) {
		t.Fatalf("images = %v, want %v", got, want)
	}
	for _, k := range want {
		obj, ok := h.store.Get(k)
		if !ok || obj.ContentType != "image/png" || !bytes.HasPrefix(obj.Data, []byte("\x89PNG")) {
			t.Errorf("object %s = %v, %v", k, obj.ContentType, ok)
		}
	}
}

func TestConvertSelectedPageUsesSameFingerprint(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 3, renderErr: -1}, nil)

	_, all := h.post(t, "", testPDF)
	code, out := h.post(t, "pages=2&format=jpeg", testPDF)
	if code != http.StatusOK {
		t.Fatalf("status %d: %v", code, out)
	}
	got := images(t, out)
	fp := strings.TrimSuffix(images(t, all)[0], "-0.png")
	if !reflect.DeepEqual(got, []string{fp + "-0.jpg"}) {
		t.Fatalf("images = %v (fingerprint %s)", got, fp)
	}
	r := h.engine.renders()
	if !reflect.DeepEqual(r[len(r)-1:], []int{1}) {
		t.Errorf("rendered = %v, want page index 1 last", r)
	}
}

func TestConvertSelectionOrderAndDedup(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 10, renderErr: -1}, nil)

	code, out := h.post(t, "pages=5,1-3,3&format=qoi&scale=0.5", testPDF)
	if code != http.StatusOK {
		t.Fatalf("status %d: %v", code, out)
	}
	fp := fingerprint.Compute(testPDF, 0.5, "")
	var want []string
	for i := 0; i < 4; i++ {
		want = append(want, fingerprint.Key(fp, i, "qoi"))
	}
	if got := images(t, out); !reflect.DeepEqual(got, want) {
		t.Fatalf("images = %v, want %v", got, want)
	}
}

func TestConvertIdempotent(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 2, renderErr: -1}, nil)

	_, first := h.post(t, "format=bmp", testPDF)
	_, second := h.post(t, "format=bmp", testPDF)
	if !reflect.DeepEqual(images(t, first), images(t, second)) {
		t.Fatalf("keys differ: %v vs %v", first, second)
	}
	if len(h.store.Keys()) != 2 || h.store.Puts() != 4 {
		t.Errorf("keys %v puts %d", h.store.Keys(), h.store.Puts())
	}
}

func TestConvertEncrypted(t *testing.T) {
	cases := []struct {
		name     string
		query    string
		wantCode int
	}{
		{"missing password", "", http.StatusForbidden},
		{"wrong password", "password=nope", http.StatusForbidden},
		{"right password", "password=s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, &fakeEngine{pages: 1, password: "s3cret", renderErr: -1}, nil)
			code, out := h.post(t, tc.query, testPDF)
			if code != tc.wantCode {
				t.Fatalf("status %d, want %d: %v", code, tc.wantCode, out)
			}
			if code != http.StatusOK {
				if out["kind"] != string(apperr.DecryptionFailure) || out["success"] != false {
					t.Errorf("body = %v", out)
				}
				if len(h.store.Keys()) != 0 {
					t.Errorf("objects written on failure: %v", h.store.Keys())
				}
				return
			}
			want := fingerprint.Key(fingerprint.Compute(testPDF, 1, "s3cret"), 0, "png")
			if got := images(t, out); got[0] != want {
				t.Errorf("key = %s, want %s", got[0], want)
			}
		})
	}
}

func TestConvertRejections(t *testing.T) {
	cases := []struct {
		name     string
		query    string
		body     []byte
		wantCode int
		wantKind apperr.Kind
	}{
		{"unknown format", "format=svg", testPDF, 400, apperr.UnsupportedFormat},
		{"uppercase format", "format=JPEG", testPDF, 400, apperr.UnsupportedFormat},
		{"scale too small", "scale=0.01", testPDF, 400, apperr.InvalidScale},
		{"scale too large", "scale=10.5", testPDF, 400, apperr.InvalidScale},
		{"scale not a number", "scale=big", testPDF, 400, apperr.InvalidScale},
		{"scale NaN", "scale=NaN", testPDF, 400, apperr.InvalidScale},
		{"bad page syntax", "pages=a-b", testPDF, 400, apperr.InvalidPageRange},
		{"page zero", "pages=0", testPDF, 400, apperr.InvalidPageRange},
		{"page past end", "pages=4", testPDF, 400, apperr.InvalidPageRange},
		{"not a pdf", "", []byte("hello, world"), 422, apperr.MalformedDocument},
		{"empty file", "", nil, 400, apperr.InvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, &fakeEngine{pages: 3, renderErr: -1}, nil)
			code, out := h.post(t, tc.query, tc.body)
			if code != tc.wantCode || out["kind"] != string(tc.wantKind) {
				t.Fatalf("got %d %v, want %d %s", code, out, tc.wantCode, tc.wantKind)
			}
			if len(h.store.Keys()) != 0 {
				t.Errorf("objects written: %v", h.store.Keys())
			}
			if r := h.engine.renders(); len(r) != 0 {
				t.Errorf("pages rendered: %v", r)
			}
		})
	}
}

func TestConvertNoPages(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 0, renderErr: -1}, nil)
	code, out := h.post(t, "", testPDF)
	if code != http.StatusUnprocessableEntity || out["kind"] != string(apperr.MalformedDocument) {
		t.Fatalf("got %d %v", code, out)
	}
}

func TestConvertRenderFailureReportsPosition(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 5, renderErr: 3}, nil)
	// document page index 3 is selection position 1
	code, out := h.post(t, "pages=1,4", testPDF)
	if code != http.StatusInternalServerError || out["kind"] != string(apperr.RenderFailure) {
		t.Fatalf("got %d %v", code, out)
	}
	if out["page"] != float64(1) {
		t.Errorf("page = %v, want 1", out["page"])
	}
}

func TestConvertEncodeFailureReportsPosition(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 4, renderErr: -1, blankPages: map[int]bool{2: true}}, nil)
	// document page index 2 is selection position 2
	code, out := h.post(t, "pages=1-4&format=webp", testPDF)
	if code != http.StatusInternalServerError || out["kind"] != string(apperr.EncodeFailure) {
		t.Fatalf("got %d %v", code, out)
	}
	if out["page"] != float64(2) || out["success"] != false {
		t.Errorf("body = %v, want failure at page 2", out)
	}
	if _, ok := out["images"]; ok {
		t.Errorf("failure body lists images: %v", out["images"])
	}
}

func TestConvertPrefersFileField(t *testing.T) {
	other := []byte("%PDF-1.7\n% attachment\n%%EOF\n")
	cases := []struct {
		name  string
		parts []formPart
		want  []byte
	}{
		{"file after another upload", []formPart{
			{field: "attachment", filename: "a.pdf", data: other},
			{field: "note", data: []byte("hi")},
			{field: "file", filename: "doc.pdf", data: testPDF},
		}, testPDF},
		{"first upload without file field", []formPart{
			{field: "note", data: []byte("hi")},
			{field: "upload", filename: "doc.pdf", data: testPDF},
			{field: "second", filename: "b.pdf", data: other},
		}, testPDF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, &fakeEngine{pages: 1, renderErr: -1}, nil)
			code, out := h.postParts(t, "", nil, tc.parts...)
			if code != http.StatusOK {
				t.Fatalf("status %d: %v", code, out)
			}
			want := fingerprint.Key(fingerprint.Compute(tc.want, 1, ""), 0, "png")
			if got := images(t, out); got[0] != want {
				t.Errorf("key = %s, want %s", got[0], want)
			}
		})
	}
}

func TestConvertNoFilePart(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 1, renderErr: -1}, nil)
	code, out := h.postParts(t, "", nil, formPart{field: "note", data: testPDF})
	if code != http.StatusBadRequest || out["kind"] != string(apperr.InvalidRequest) {
		t.Fatalf("got %d %v", code, out)
	}
}

func TestConvertBearerToken(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 1, renderErr: -1}, func(d *Dependencies) { d.Token = "tok" })
	file := formPart{field: "file", filename: "doc.pdf", data: testPDF}
	cases := []struct {
		auth string
		want int
	}{
		{"Bearer tok", http.StatusOK},
		{"tok", http.StatusUnauthorized},
		{"Basic tok", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		code, out := h.postParts(t, "", http.Header{"Authorization": {tc.auth}}, file)
		if code != tc.want {
			t.Errorf("Authorization %q: status %d, want %d (%v)", tc.auth, code, tc.want, out)
		}
	}
}

func TestConvertToken(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 1, renderErr: -1}, func(d *Dependencies) { d.Token = "tok" })

	code, out := h.post(t, "format=svg", testPDF)
	if code != http.StatusUnauthorized || out["kind"] != string(apperr.Unauthorized) {
		t.Fatalf("token must be checked before format: %d %v", code, out)
	}
	if code, _ := h.post(t, "token=tok", testPDF); code != http.StatusOK {
		t.Fatalf("valid token rejected: %d", code)
	}
}

func TestConvertBodyTooLarge(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 1, renderErr: -1}, func(d *Dependencies) { d.BodyLimit = 1024 })
	big := append(append([]byte{}, testPDF...), bytes.Repeat([]byte{' '}, 4096)...)
	code, out := h.post(t, "", big)
	if code != http.StatusRequestEntityTooLarge || out["kind"] != string(apperr.BodyTooLarge) {
		t.Fatalf("got %d %v", code, out)
	}
}

type denyAll struct{}

func (denyAll) Allow(context.Context) (func(), bool) { return func() {}, false }

func TestConvertBusy(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 1, renderErr: -1}, func(d *Dependencies) { d.Admission = denyAll{} })
	code, out := h.post(t, "", testPDF)
	if code != http.StatusServiceUnavailable || out["kind"] != string(apperr.Busy) {
		t.Fatalf("got %d %v", code, out)
	}
}

func TestConvertRequiresMultipart(t *testing.T) {
	h := newHarness(t, &fakeEngine{pages: 1, renderErr: -1}, nil)
	resp, err := http.Post(h.srv.URL+"/", "application/pdf", bytes.NewReader(testPDF))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t, &fakeEngine{}, nil)
	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(h.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		var out map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || out["status"] != "ok" {
			t.Errorf("%s: %d %v", path, resp.StatusCode, out)
		}
	}
}

func TestCheckScale(t *testing.T) {
	for _, s := range []float64{0.1, 1, 2.5, 10} {
		if err := CheckScale(s); err != nil {
			t.Errorf("CheckScale(%v) = %v", s, err)
		}
	}
	for _, s := range []float64{0, 0.09, -1, 10.01} {
		if apperr.KindOf(CheckScale(s)) != apperr.InvalidScale {
			t.Errorf("CheckScale(%v) accepted", s)
		}
	}
}

func ExampleParsePages() {
	sel, _ := ParsePages("5,1-3,3", 10)
	fmt.Println(sel)
	// Output: [0 1 2 4]
}
