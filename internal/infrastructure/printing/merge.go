package printing

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/go-pdf/fpdf/contrib/gofpdi"
)

// ComposedWidth is the width of the merged page: slip on the left half,
// carrier label on the right half.
const ComposedWidth = 2 * SlipWidth

// Placement is a rectangle on the merged page, in points.
type Placement struct {
	X, Y, W, H float64
}

// LabelPlacement centers the carrier label in the right half of the merged
// page, scaled by scale.
func LabelPlacement(scale float64) Placement {
	w := SlipWidth * scale
	h := SlipHeight * scale
	return Placement{
		X: SlipWidth + (SlipWidth-w)/2,
		Y: (SlipHeight - h) / 2,
		W: w,
		H: h,
	}
}

// Merge places the first page of slip at native size on the left half and
// the first page of label on the right half of a ComposedWidth×SlipHeight
// page. A label scaled above 1 overflows its half: it is drawn over the slip
// edge and clipped by the page.
func Merge(slip, label []byte, scale float64) (out []byte, err error) {
	// The importer panics on malformed input.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, NewRenderError(ErrCodeMergeFailed, "failed to import pdf page", fmt.Errorf("%v", r))
		}
	}()

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: ComposedWidth, Ht: SlipHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("shipping", false)
	pdf.AddPage()

	imp := gofpdi.NewImporter()

	var slipRS io.ReadSeeker = bytes.NewReader(slip)
	slipTpl := imp.ImportPageFromStream(pdf, &slipRS, 1, "/MediaBox")
	imp.UseImportedTemplate(pdf, slipTpl, 0, 0, SlipWidth, SlipHeight)

	var labelRS io.ReadSeeker = bytes.NewReader(label)
	labelTpl := imp.ImportPageFromStream(pdf, &labelRS, 1, "/MediaBox")
	at := LabelPlacement(scale)
	imp.UseImportedTemplate(pdf, labelTpl, at.X, at.Y, at.W, at.H)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, NewRenderError(ErrCodeMergeFailed, "failed to write composed pdf", err)
	}
	return buf.Bytes(), nil
}
