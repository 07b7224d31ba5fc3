// Package raster implements the label format conversions: PDF to JPEG,
// raster image to ZPL graphic field, and ZPL to PDF through an external
// rendering service.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/httpclient"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

const (
	// RenderScale is the supersampling factor applied when rasterizing PDFs.
	RenderScale = 3
	pdfBaseDPI  = 72

	jpegQuality = 90

	// rendererPath asks for 8 dots/mm, a 4x6 inch label and no rotation.
	rendererPath = "/v1/printers/8dpmm/labels/4x6/0/"
)

// Config configures a Converter
type Config struct {
	RendererURL string
	Logger      *zap.Logger
}

// Converter performs the raster conversions. It is safe for concurrent use.
type Converter struct {
	renderer    *httpclient.Client
	rendererURL string
	logger      *zap.Logger
}

// NewConverter creates a Converter. renderer is used only by ZPLToPDF.
func NewConverter(renderer *httpclient.Client, cfg Config) *Converter {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Converter{
		renderer:    renderer,
		rendererURL: strings.TrimRight(cfg.RendererURL, "/"),
		logger:      cfg.Logger.Named("raster"),
	}
}

// PDFToImage renders the first page of pdf at RenderScale, rotates it 90°
// clockwise and encodes it as JPEG.
func (c *Converter) PDFToImage(pdf []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", shipping.ErrFormat, err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", shipping.ErrFormat)
	}

	page, err := doc.ImageDPI(0, pdfBaseDPI*RenderScale)
	if err != nil {
		return nil, fmt.Errorf("%w: render page: %v", shipping.ErrFormat, err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Rotate270(page), imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ScaledSize returns the target size of a w×h image scaled by factor.
// Dimensions are rounded, not truncated, so repeated conversions do not drift.
func ScaledSize(w, h int, factor float64) (int, int) {
	return int(math.Round(float64(w) * factor)), int(math.Round(float64(h) * factor))
}

// ImageToBitmap resizes img by factor, converts it to greyscale and packs it.
func (c *Converter) ImageToBitmap(img image.Image, factor float64) (*Bitmap, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("%w: bitmap scale factor must be positive, got %v", shipping.ErrConfiguration, factor)
	}
	b := img.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), factor)
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("%w: image %dx%d scales to nothing", shipping.ErrFormat, b.Dx(), b.Dy())
	}

	resized := img
	if w != b.Dx() || h != b.Dy() {
		resized = imaging.Resize(img, w, h, imaging.Lanczos)
	}
	return Pack(Greyscale(resized)), nil
}

// ImageToZPL decodes an encoded image (JPEG, PNG) and returns its ZPL text.
func (c *Converter) ImageToZPL(encoded []byte, factor float64) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("%w: decode image: %v", shipping.ErrFormat, err)
	}
	bm, err := c.ImageToBitmap(img, factor)
	if err != nil {
		return "", err
	}
	return bm.ZPL(), nil
}

// ZPLToPDF renders zpl through the external label renderer, binarizes the
// returned image and embeds it in a one-page PDF sized to the image pixels.
func (c *Converter) ZPLToPDF(ctx context.Context, zpl string) ([]byte, error) {
	resp, err := c.renderer.Post(ctx, c.rendererURL+rendererPath, []byte(zpl), httpclient.Options{
		Headers: map[string]string{
			"Accept":       "image/png",
			"Content-Type": "application/x-www-form-urlencoded",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("render zpl: %w", httpclient.Classify(err))
	}

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: renderer answered %q instead of an image", shipping.ErrFormat, ct)
	}
	img, err := imaging.Decode(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: decode rendered label: %v", shipping.ErrFormat, err)
	}

	c.logger.Debug("zpl rendered", zap.Int("width", img.Bounds().Dx()), zap.Int("height", img.Bounds().Dy()))
	return EmbedImage(Binarize(img))
}
