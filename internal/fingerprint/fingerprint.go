// Package fingerprint derives the content address shared by every image of
// one conversion.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Size is the length of a fingerprint in hex characters.
const Size = blake2b.Size256 * 2

const domain = "pdf2img/v1"

// Compute hashes the document together with the options that change rendered
// pixels. Output format and page selection are deliberately not inputs, so
// every page and format of one document+scale+password share a prefix.
func Compute(doc []byte, scale float64, password string) string {
	h, _ := blake2b.New256(nil)
	writeFrame(h, []byte(domain))
	writeFrame(h, doc)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(scale))
	h.Write(buf[:])

	if password == "" {
		h.Write([]byte{0})
	} else {
		h.Write([]byte{1})
		writeFrame(h, []byte(password))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeFrame(h hash.Hash, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}

// Key builds the object key for the image at position pos of the selection.
func Key(fp string, pos int, ext string) string {
	return fmt.Sprintf("%s-%d.%s", fp, pos, ext)
}
