package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/local/pdf2img/internal/storage"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type brokenStore struct{ storage.Memory }

func (*brokenStore) Ping(context.Context) error { return errors.New(strings.Repeat("x", 200)) }

func TestCheck(t *testing.T) {
	cases := []struct {
		name   string
		opts   Options
		wantOK bool
	}{
		{"store only", Options{Store: storage.NewMemory(), Engine: "mupdf"}, true},
		{"redis up", Options{Store: storage.NewMemory(), Engine: "mupdf", Redis: pinger{}}, true},
		{"redis down", Options{Store: storage.NewMemory(), Engine: "mupdf", Redis: pinger{errors.New("refused")}}, false},
		{"no store", Options{Engine: "mupdf"}, false},
		{"store down", Options{Store: &brokenStore{}, Engine: "pdfium"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sum, ok := New(tc.opts).Check(context.Background())
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v (%+v)", ok, tc.wantOK, sum)
			}
			if (tc.opts.Redis == nil) != (sum.Redis == nil) {
				t.Errorf("redis status presence = %v", sum.Redis)
			}
			if len(sum.Store.Message) > 120 {
				t.Errorf("message not trimmed: %d chars", len(sum.Store.Message))
			}
		})
	}
}
