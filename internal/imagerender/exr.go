package imagerender

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"io"
	"math"
)

// OpenEXR single-part scanline file, uncompressed, one scanline per block,
// 32-bit float channels in alphabetical order.
var exrChannels = []string{"A", "B", "G", "R"}

const (
	exrMagic     = 20000630
	exrVersion   = 2
	exrPixFloat  = 2
	exrBytesPerV = 4
)

func encodeEXR(w io.Writer, img image.Image) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	var hdr bytes.Buffer
	le := binary.LittleEndian
	put := func(v any) { _ = binary.Write(&hdr, le, v) }
	attr := func(name, typ string, size int) {
		hdr.WriteString(name)
		hdr.WriteByte(0)
		hdr.WriteString(typ)
		hdr.WriteByte(0)
		put(int32(size))
	}

	put(uint32(exrMagic))
	put(uint32(exrVersion))

	chSize := 1
	for _, c := range exrChannels {
		chSize += len(c) + 1 + 16
	}
	attr("channels", "chlist", chSize)
	for _, c := range exrChannels {
		hdr.WriteString(c)
		hdr.WriteByte(0)
		put(int32(exrPixFloat))
		hdr.Write([]byte{0, 0, 0, 0}) // pLinear + reserved
		put(int32(1))
		put(int32(1))
	}
	hdr.WriteByte(0)

	attr("compression", "compression", 1)
	hdr.WriteByte(0)
	window := [4]int32{0, 0, int32(width - 1), int32(height - 1)}
	attr("dataWindow", "box2i", 16)
	put(window)
	attr("displayWindow", "box2i", 16)
	put(window)
	attr("lineOrder", "lineOrder", 1)
	hdr.WriteByte(0)
	attr("pixelAspectRatio", "float", 4)
	put(float32(1))
	attr("screenWindowCenter", "v2f", 8)
	put([2]float32{0, 0})
	attr("screenWindowWidth", "float", 4)
	put(float32(1))
	hdr.WriteByte(0)

	lineBytes := width * len(exrChannels) * exrBytesPerV
	blockBytes := 8 + lineBytes
	first := hdr.Len() + height*8
	for y := 0; y < height; y++ {
		put(uint64(first + y*blockBytes))
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr.Bytes()); err != nil {
		return err
	}

	line := make([]byte, 8+lineBytes)
	planes := make([][]float32, len(exrChannels))
	for i := range planes {
		planes[i] = make([]float32, width)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			planes[0][x] = float32(c.A) / 0xffff
			planes[1][x] = float32(c.B) / 0xffff
			planes[2][x] = float32(c.G) / 0xffff
			planes[3][x] = float32(c.R) / 0xffff
		}
		le.PutUint32(line[0:], uint32(int32(y)))
		le.PutUint32(line[4:], uint32(lineBytes))
		off := 8
		for _, p := range planes {
			for _, v := range p {
				le.PutUint32(line[off:], math.Float32bits(v))
				off += exrBytesPerV
			}
		}
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}
