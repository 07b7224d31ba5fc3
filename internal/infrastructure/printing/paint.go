package printing

import (
	"bytes"
	"fmt"
	"image"
	"strconv"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"go.uber.org/zap"
)

// Render plans the slip and paints it on a single SlipWidth×SlipHeight page.
func (r *SlipRenderer) Render(data SlipData) ([]byte, error) {
	ops := r.Plan(data)

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: SlipWidth, Ht: SlipHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("shipping", false)
	pdf.AddPage()

	pt := painter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	for i, op := range ops {
		if err := pt.paint(i, op); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, NewRenderError(ErrCodeRenderFailed, "failed to write packing slip", err)
	}
	r.logger.Debug("packing slip rendered",
		zap.String("order_number", data.Order.OrderNumber),
		zap.Int("ops", len(ops)),
		zap.Int("size", out.Len()))
	return out.Bytes(), nil
}

type painter struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (p painter) paint(i int, op DrawOp) error {
	switch op.Kind {
	case OpText:
		style := ""
		if op.Bold {
			style = "B"
		}
		p.pdf.SetFont(fontFamily, style, op.FontSize)
		if op.Inverted {
			p.pdf.SetTextColor(255, 255, 255)
		}
		p.pdf.SetXY(op.X, op.Y)
		p.pdf.CellFormat(op.W, op.H, p.tr(op.Text), "", 0, op.Align+"M", false, 0, "")
		p.pdf.SetTextColor(0, 0, 0)
	case OpRule:
		p.pdf.SetLineWidth(op.H)
		p.pdf.Line(op.X, op.Y, op.X+op.W, op.Y)
	case OpBox:
		p.pdf.SetFillColor(0, 0, 0)
		p.pdf.Rect(op.X, op.Y, op.W, op.H, "F")
	case OpImage:
		img, err := imaging.Decode(bytes.NewReader(op.Image))
		if err != nil {
			return NewRenderError(ErrCodeInvalidImage, "failed to decode logo", err)
		}
		return p.png("logo"+strconv.Itoa(i), img, op)
	case OpBarcode:
		bc, err := code128.Encode(op.Text)
		if err != nil {
			return NewRenderError(ErrCodeRenderFailed, "failed to encode access key barcode", err)
		}
		// Integer module widths keep the bars crisp when rasterized.
		scaled, err := barcode.Scale(bc, bc.Bounds().Dx()*2, int(op.H)*2)
		if err != nil {
			return NewRenderError(ErrCodeRenderFailed, "failed to scale barcode", err)
		}
		return p.png("barcode"+strconv.Itoa(i), scaled, op)
	default:
		return NewRenderError(ErrCodeRenderFailed, fmt.Sprintf("unknown drawing operation %d", op.Kind), nil)
	}
	return nil
}

func (p painter) png(name string, img image.Image, op DrawOp) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return NewRenderError(ErrCodeRenderFailed, "failed to encode "+name, err)
	}
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	p.pdf.RegisterImageOptionsReader(name, opts, &buf)
	p.pdf.ImageOptions(name, op.X, op.Y, op.W, op.H, false, opts, 0, "")
	return p.pdf.Error()
}
