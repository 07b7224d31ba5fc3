package raster

import (
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomGray(rng *rand.Rand, w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = uint8(rng.Intn(256))
	}
	return g
}

func TestPack_SizeAndRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, size := range [][2]int{{1, 1}, {7, 3}, {8, 2}, {9, 5}, {13, 13}, {100, 17}, {813, 4}} {
		w, h := size[0], size[1]
		t.Run(fmt.Sprintf("%dx%d", w, h), func(t *testing.T) {
			gray := randomGray(rng, w, h)
			bm := Pack(gray)

			assert.Equal(t, (w+7)/8, bm.BytesPerRow)
			assert.Equal(t, (w+7)/8*h, bm.TotalBytes())

			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					assert.Equal(t, gray.GrayAt(x, y).Y < Threshold, bm.Dark(x, y), "pixel %d,%d", x, y)
				}
				// padding bits stay white
				for x := w; x < bm.BytesPerRow*8; x++ {
					assert.False(t, bm.Dark(x, y))
				}
			}
		})
	}
}

func TestPack_ThresholdBoundary(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 1))
	g.Pix[0], g.Pix[1], g.Pix[2] = 127, 128, 0

	bm := Pack(g)
	assert.Equal(t, []byte{0xA0}, bm.Data)
}

func TestBitmap_ZPL(t *testing.T) {
	bm := &Bitmap{Width: 10, Height: 2, BytesPerRow: 2, Data: []byte{0xFF, 0xC0, 0x0a, 0x00}}

	zpl := bm.ZPL()
	assert.Equal(t, "^XA^FO0,0^GFA,4,4,2,FFC00A00^FS^XZ", zpl)
}

func TestBitmap_ZPL_PayloadDecodes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	bm := Pack(randomGray(rng, 37, 11))

	zpl := bm.ZPL()
	require.True(t, strings.HasPrefix(zpl, "^XA^FO0,0^GFA,"))
	require.True(t, strings.HasSuffix(zpl, "^FS^XZ"))

	fields := strings.SplitN(strings.TrimSuffix(strings.TrimPrefix(zpl, "^XA^FO0,0^GFA,"), "^FS^XZ"), ",", 4)
	require.Len(t, fields, 4)
	assert.Equal(t, fmt.Sprint(bm.TotalBytes()), fields[0])
	assert.Equal(t, fields[0], fields[1])
	assert.Equal(t, "5", fields[2])

	assert.Equal(t, strings.ToUpper(fields[3]), fields[3])
	data, err := hex.DecodeString(fields[3])
	require.NoError(t, err)
	assert.Equal(t, bm.Data, data)
}

func TestGreyscale_FlattensTransparencyToWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{A: 0})
	img.SetNRGBA(1, 0, color.NRGBA{A: 0xFF})

	gray := Greyscale(img)
	assert.Equal(t, uint8(0xFF), gray.Pix[0])
	assert.Equal(t, uint8(0), gray.Pix[1])
}

func TestBinarize(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(img.Pix, []byte{10, 127, 128, 250})

	out := Binarize(img)
	assert.Equal(t, []byte{0, 0, 0xFF, 0xFF}, out.Pix)
}
