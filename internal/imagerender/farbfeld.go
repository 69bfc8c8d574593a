package imagerender

import (
	"bufio"
	"encoding/binary"
	"image"
	"image/color"
	"io"
)

const farbfeldMagic = "farbfeld"

// encodeFarbfeld writes 16-bit big-endian non-premultiplied RGBA.
func encodeFarbfeld(w io.Writer, img image.Image) error {
	b := img.Bounds()
	bw := bufio.NewWriter(w)

	var head [16]byte
	copy(head[:8], farbfeldMagic)
	binary.BigEndian.PutUint32(head[8:], uint32(b.Dx()))
	binary.BigEndian.PutUint32(head[12:], uint32(b.Dy()))
	if _, err := bw.Write(head[:]); err != nil {
		return err
	}

	var px [8]byte
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			binary.BigEndian.PutUint16(px[0:], c.R)
			binary.BigEndian.PutUint16(px[2:], c.G)
			binary.BigEndian.PutUint16(px[4:], c.B)
			binary.BigEndian.PutUint16(px[6:], c.A)
			if _, err := bw.Write(px[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
