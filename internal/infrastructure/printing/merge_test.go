package printing

import (
	"bytes"
	"testing"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelPlacement(t *testing.T) {
	tests := []struct {
		scale float64
		want  Placement
	}{
		{1, Placement{X: 212.6, Y: 0, W: 212.6, H: 283.46}},
		{0.5, Placement{X: 212.6 + 53.15, Y: 70.865, W: 106.3, H: 141.73}},
		{1.08, Placement{X: 212.6 - 8.504, Y: -11.3384, W: 229.608, H: 306.1368}},
	}
	for _, tt := range tests {
		got := LabelPlacement(tt.scale)
		assert.InDelta(t, tt.want.X, got.X, 1e-6)
		assert.InDelta(t, tt.want.Y, got.Y, 1e-6)
		assert.InDelta(t, tt.want.W, got.W, 1e-6)
		assert.InDelta(t, tt.want.H, got.H, 1e-6)
	}
}

func carrierLabel(t *testing.T) []byte {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A6", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "CARRIER")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func TestMerge(t *testing.T) {
	slip, err := NewSlipRenderer(nil).Render(sampleSlip())
	require.NoError(t, err)

	out, err := Merge(slip, carrierLabel(t), shipping.DefaultCalibration.ShippingLabelScaleFactor)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestMerge_InvalidLabel(t *testing.T) {
	slip, err := NewSlipRenderer(nil).Render(sampleSlip())
	require.NoError(t, err)

	_, err = Merge(slip, []byte("garbage"), 1)
	assert.ErrorIs(t, err, shipping.ErrFormat)
}
