package orchestrator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/local/pdf2img/internal/apperr"
)

// RangeToken is one comma-separated element of a page expression, 1-based
// and inclusive. A single page has Start == End.
type RangeToken struct {
	Start int
	End   int
}

// Selection is the ordered, deduplicated list of 0-based pages to convert.
type Selection []int

// ParseExpr checks the syntax of a page expression without knowing the page
// count. An empty expression yields no tokens, meaning "all pages".
func ParseExpr(expr string) ([]RangeToken, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	parts := strings.Split(expr, ",")
	tokens := make([]RangeToken, 0, len(parts))
	for _, raw := range parts {
		tok, err := parseToken(strings.TrimSpace(raw))
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidPageRange, fmt.Sprintf("invalid page range %q", expr), err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

func parseToken(s string) (RangeToken, error) {
	if s == "" {
		return RangeToken{}, fmt.Errorf("empty token")
	}
	lo, hi, isRange := strings.Cut(s, "-")
	start, err := parsePage(lo)
	if err != nil {
		return RangeToken{}, err
	}
	if !isRange {
		return RangeToken{Start: start, End: start}, nil
	}
	end, err := parsePage(hi)
	if err != nil {
		return RangeToken{}, err
	}
	if start > end {
		return RangeToken{}, fmt.Errorf("range %d-%d is reversed", start, end)
	}
	return RangeToken{Start: start, End: end}, nil
}

func parsePage(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "+-") {
		return 0, fmt.Errorf("%q is not a page number", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a page number", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("page numbers start at 1, got %d", n)
	}
	return n, nil
}

// Resolve bounds-checks tokens against pageCount and returns the selection.
// No tokens select every page.
func Resolve(tokens []RangeToken, pageCount int) (Selection, error) {
	if len(tokens) == 0 {
		sel := make(Selection, pageCount)
		for i := range sel {
			sel[i] = i
		}
		return sel, nil
	}
	seen := make(map[int]struct{})
	for _, t := range tokens {
		if t.End > pageCount {
			return nil, apperr.New(apperr.InvalidPageRange,
				fmt.Sprintf("page %d out of range (document has %d pages)", t.End, pageCount))
		}
		for p := t.Start; p <= t.End; p++ {
			seen[p-1] = struct{}{}
		}
	}
	sel := make(Selection, 0, len(seen))
	for p := range seen {
		sel = append(sel, p)
	}
	sort.Ints(sel)
	return sel, nil
}

// ParsePages parses expr and resolves it against pageCount.
func ParsePages(expr string, pageCount int) (Selection, error) {
	tokens, err := ParseExpr(expr)
	if err != nil {
		return nil, err
	}
	return Resolve(tokens, pageCount)
}
