package printing

import (
	"bytes"
	"image"
	"slices"
	"strconv"
	"strings"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/go-pdf/fpdf"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Packing slip page, in points (75×100 mm).
const (
	SlipWidth  = 212.6
	SlipHeight = 283.46

	slipMargin   = 8.0
	logoWidth    = 80.0
	headerGap    = 4.0
	lineGap      = 1.5
	qtyBoxSize   = 12.0
	barcodeH     = 26.0
	maxSlipItems = 6

	skuFontSize  = 11.0
	descFontSize = 7.0
	rowGap       = 2.0

	fontFamily = "Helvetica"
)

// ItemsWarning replaces the item list when an order has too many SKUs to fit.
const ItemsWarning = "VERIFICAR ITENS E QUANTIDADES NO PEDIDO"

// OpKind identifies a drawing operation.
type OpKind int

const (
	OpText OpKind = iota
	OpImage
	OpBarcode
	OpRule
	OpBox
)

// DrawOp is one positioned drawing operation on the slip page. Coordinates
// are in points from the top-left corner.
type DrawOp struct {
	Kind OpKind
	X, Y float64
	W, H float64

	Text     string
	FontSize float64
	Bold     bool
	Align    string // L, C or R
	Inverted bool   // white text, drawn over a black box

	Image []byte
}

// Bottom is the lowest y coordinate the operation touches.
func (op DrawOp) Bottom() float64 { return op.Y + op.H }

// SlipData is everything printed on a packing slip.
type SlipData struct {
	Order   shipping.Order
	Invoice shipping.Invoice
	Items   []shipping.LineItem
	// Logo is an encoded image (PNG, JPEG or GIF). Optional.
	Logo []byte
}

// SlipRenderer renders packing slips. It is safe for concurrent use.
type SlipRenderer struct {
	logger *zap.Logger
}

// NewSlipRenderer creates a SlipRenderer.
func NewSlipRenderer(logger *zap.Logger) *SlipRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlipRenderer{logger: logger.Named("slip")}
}

// planner accumulates operations top to bottom. Once an operation would
// cross the printable height, it and everything after it are dropped.
type planner struct {
	ops       []DrawOp
	y         float64
	truncated bool

	measure *fpdf.Fpdf
	tr      func(string) string
	upper   cases.Caser
}

func newPlanner() *planner {
	m := fpdf.New("P", "pt", "A4", "")
	return &planner{
		y:       slipMargin,
		measure: m,
		tr:      m.UnicodeTranslatorFromDescriptor(""),
		upper:   cases.Upper(language.BrazilianPortuguese),
	}
}

const contentWidth = SlipWidth - 2*slipMargin

func (p *planner) add(op DrawOp) bool {
	if p.truncated || op.Bottom() > SlipHeight-slipMargin {
		p.truncated = true
		return false
	}
	p.ops = append(p.ops, op)
	return true
}

// fits reports whether a block of height h still fits below the cursor.
func (p *planner) fits(h float64) bool {
	return !p.truncated && p.y+h <= SlipHeight-slipMargin
}

func lineHeight(size float64) float64 { return size + lineGap }

// line adds a single unwrapped line at y. It does not move the cursor.
func (p *planner) line(x, y, w float64, s string, size float64, bold bool, align string) float64 {
	h := lineHeight(size)
	p.add(DrawOp{Kind: OpText, X: x, Y: y, W: w, H: h, Text: s, FontSize: size, Bold: bold, Align: align})
	return h
}

// text adds wrapped text at the cursor and advances it.
func (p *planner) text(s string, size float64, bold bool, align string) {
	p.textIn(slipMargin, contentWidth, s, size, bold, align)
}

func (p *planner) textIn(x, w float64, s string, size float64, bold bool, align string) {
	for _, line := range p.wrap(s, size, bold, w) {
		h := lineHeight(size)
		p.add(DrawOp{Kind: OpText, X: x, Y: p.y, W: w, H: h, Text: line, FontSize: size, Bold: bold, Align: align})
		p.y += h
	}
}

func (p *planner) width(s string, size float64, bold bool) float64 {
	style := ""
	if bold {
		style = "B"
	}
	p.measure.SetFont(fontFamily, style, size)
	return p.measure.GetStringWidth(p.tr(s))
}

// wrap breaks s into lines no wider than w, on spaces. A single word wider
// than w is kept on its own line.
func (p *planner) wrap(s string, size float64, bold bool, w float64) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	cur := words[0]
	for _, word := range words[1:] {
		if next := cur + " " + word; p.width(next, size, bold) <= w {
			cur = next
			continue
		}
		lines = append(lines, cur)
		cur = word
	}
	return append(lines, cur)
}

func (p *planner) rule() {
	p.y += 2
	p.add(DrawOp{Kind: OpRule, X: slipMargin, Y: p.y, W: contentWidth, H: 0.8})
	p.y += 4
}

// Plan lays out the slip without drawing it.
func (r *SlipRenderer) Plan(data SlipData) []DrawOp {
	p := newPlanner()

	// Header row: logo on the left, invoice block right-aligned beside it.
	top := p.y
	logoH := 0.0
	if len(data.Logo) > 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data.Logo)); err == nil && cfg.Width > 0 {
			logoH = logoWidth * float64(cfg.Height) / float64(cfg.Width)
			p.add(DrawOp{Kind: OpImage, X: slipMargin, Y: top, W: logoWidth, H: logoH, Image: data.Logo})
		} else {
			r.logger.Warn("store logo is not a readable image, skipping",
				zap.Int64("store_id", data.Order.StoreID), zap.Error(err))
		}
	}

	inv := data.Invoice
	colX := slipMargin + logoWidth + headerGap
	colW := SlipWidth - slipMargin - colX
	invH := p.line(colX, top, colW, invoiceLine(inv), 8, true, "R")
	if !inv.IssuedAt.IsZero() {
		invH += p.line(colX, top+invH, colW, "Emissão: "+inv.IssuedAt.Format("02/01/2006 15:04"), 7, false, "R")
	}
	p.y = top + max(logoH, invH) + headerGap

	if key := strings.ReplaceAll(inv.AccessKey, " ", ""); key != "" {
		p.y += 2
		p.add(DrawOp{Kind: OpBarcode, X: slipMargin, Y: p.y, W: contentWidth, H: barcodeH, Text: key})
		p.y += barcodeH + 2
		p.text(inv.AccessKeyGroups(), 6, false, "C")
	}
	p.rule()

	rc := data.Order.Recipient
	p.text(p.upper.String(rc.Name), 9, true, "L")
	p.text(rc.AddressLine(), 7, false, "L")
	p.text(rc.CityLine(), 7, false, "L")
	p.rule()

	p.text("PEDIDO: "+p.upper.String(data.Order.OrderNumber), 9, true, "L")
	p.rule()

	items := MergeItems(data.Items)
	if len(items) > maxSlipItems {
		p.text(ItemsWarning, 8, true, "C")
		return p.ops
	}
	for _, it := range items {
		p.item(it)
	}
	return p.ops
}

func invoiceLine(inv shipping.Invoice) string {
	line := "NF-e: " + inv.Number
	if inv.Series != "" {
		line += "  Série: " + inv.Series
	}
	return line
}

// item draws the SKU in large bold type with the description under it, and
// the quantity on the right. Quantities of two or more are printed white on a
// black square so pickers notice them. The whole row is measured first: an
// item that does not fit is dropped together with its quantity.
func (p *planner) item(it shipping.LineItem) {
	textW := contentWidth - qtyBoxSize - 4
	sku := p.wrap(it.SKU, skuFontSize, true, textW)
	desc := p.wrap(it.Description, descFontSize, false, textW)

	textH := float64(len(sku))*lineHeight(skuFontSize) + float64(len(desc))*lineHeight(descFontSize)
	rowH := max(textH, qtyBoxSize)
	if !p.fits(rowH) {
		p.truncated = true
		return
	}

	top := p.y
	for _, l := range sku {
		p.y += p.line(slipMargin, p.y, textW, l, skuFontSize, true, "L")
	}
	for _, l := range desc {
		p.y += p.line(slipMargin, p.y, textW, l, descFontSize, false, "L")
	}

	qx := SlipWidth - slipMargin - qtyBoxSize
	qty := FormatQuantity(it.Quantity)
	if it.Quantity >= 2 {
		p.add(DrawOp{Kind: OpBox, X: qx, Y: top, W: qtyBoxSize, H: qtyBoxSize})
		p.add(DrawOp{Kind: OpText, X: qx, Y: top, W: qtyBoxSize, H: qtyBoxSize, Text: qty, FontSize: 8, Bold: true, Align: "C", Inverted: true})
	} else {
		p.add(DrawOp{Kind: OpText, X: qx, Y: top, W: qtyBoxSize, H: qtyBoxSize, Text: qty, FontSize: 8, Align: "C"})
	}
	p.y = top + rowH + rowGap
}

// FormatQuantity prints whole quantities without decimals.
func FormatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// MergeItems sums quantities of lines sharing a SKU and sorts by SKU.
// The first description seen for a SKU wins.
func MergeItems(items []shipping.LineItem) []shipping.LineItem {
	index := make(map[string]int, len(items))
	merged := make([]shipping.LineItem, 0, len(items))
	for _, it := range items {
		if i, ok := index[it.SKU]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.SKU] = len(merged)
		merged = append(merged, it)
	}
	slices.SortStableFunc(merged, func(a, b shipping.LineItem) int {
		return strings.Compare(a.SKU, b.SKU)
	})
	return merged
}
