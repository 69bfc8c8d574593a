package pdftest

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
)

func TestBuildXrefOffsets(t *testing.T) {
	data := Build(2)
	if !bytes.HasPrefix(data, []byte("%PDF-1.7\n")) || !bytes.HasSuffix(data, []byte("%%EOF\n")) {
		t.Fatal("missing header or trailer")
	}
	s := string(data)
	start := strings.LastIndex(s, "startxref\n")
	xref, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(s[start+len("startxref\n"):], "%%EOF\n")))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(s[xref:], "xref\n0 6\n") {
		t.Fatalf("startxref %d does not point at the table", xref)
	}
	lines := strings.Split(s[xref:], "\n")[3:8]
	for i, l := range lines {
		off, err := strconv.Atoi(l[:10])
		if err != nil {
			t.Fatal(err)
		}
		want := strconv.Itoa(i+1) + " 0 obj"
		if !strings.HasPrefix(s[off:], want) {
			t.Errorf("entry %d points at %q", i+1, s[off:off+10])
		}
	}
}
