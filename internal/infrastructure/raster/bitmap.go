package raster

import (
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
)

// Threshold is the grey level below which a pixel prints as a dot.
const Threshold = 128

// Bitmap is a 1-bit image packed MSB-first, 8 pixels per byte, each row
// padded to a whole byte. A set bit is a dark (printed) pixel.
type Bitmap struct {
	Width       int
	Height      int
	BytesPerRow int
	Data        []byte
}

// TotalBytes is BytesPerRow * Height.
func (b *Bitmap) TotalBytes() int {
	return len(b.Data)
}

// Dark reports whether the pixel at (x, y) is set.
func (b *Bitmap) Dark(x, y int) bool {
	return b.Data[y*b.BytesPerRow+x/8]&(0x80>>uint(x%8)) != 0
}

// ZPL wraps the bitmap in a single ^GFA graphic field placed at the label
// origin, between ^XA and ^XZ.
func (b *Bitmap) ZPL() string {
	payload := strings.ToUpper(hex.EncodeToString(b.Data))
	var sb strings.Builder
	sb.Grow(len(payload) + 64)
	fmt.Fprintf(&sb, "^XA^FO0,0^GFA,%d,%d,%d,", b.TotalBytes(), b.TotalBytes(), b.BytesPerRow)
	sb.WriteString(payload)
	sb.WriteString("^FS^XZ")
	return sb.String()
}

// Pack thresholds gray and packs it. Trailing bits of the last byte of each
// row stay unset (white).
func Pack(gray *image.Gray) *Bitmap {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	bpr := (w + 7) / 8

	data := make([]byte, bpr*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		out := data[y*bpr : (y+1)*bpr]
		for x, level := range row {
			if level < Threshold {
				out[x/8] |= 0x80 >> uint(x%8)
			}
		}
	}
	return &Bitmap{Width: w, Height: h, BytesPerRow: bpr, Data: data}
}

// Greyscale flattens img onto white and converts it to 8-bit luminance.
// The result always has a zero origin.
func Greyscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	flat := imaging.Overlay(imaging.New(bounds.Dx(), bounds.Dy(), color.White), img, image.Pt(0, 0), 1.0)
	lum := imaging.Grayscale(flat)

	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		src := lum.Pix[y*lum.Stride:]
		dst := gray.Pix[y*gray.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			dst[x] = src[x*4]
		}
	}
	return gray
}

// Binarize maps every pixel of img to pure black or white at Threshold.
func Binarize(img image.Image) *image.Gray {
	gray := Greyscale(img)
	for i, level := range gray.Pix {
		if level < Threshold {
			gray.Pix[i] = 0
		} else {
			gray.Pix[i] = 0xFF
		}
	}
	return gray
}
