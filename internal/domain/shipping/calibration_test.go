package shipping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalibrationTable_For(t *testing.T) {
	table := NewCalibrationTable(StoreCalibration{}, map[int64]StoreCalibration{
		7: {ShippingLabelScaleFactor: 1.2, BitmapScaleFactor: 0.9},
		8: {ShippingLabelScaleFactor: 1.0},
	})

	t.Run("store without entry uses documented defaults", func(t *testing.T) {
		c := table.For(999)
		assert.Equal(t, 1.08, c.ShippingLabelScaleFactor)
		assert.Equal(t, 0.98, c.BitmapScaleFactor)
	})

	t.Run("explicit entry", func(t *testing.T) {
		assert.Equal(t, StoreCalibration{1.2, 0.9}, table.For(7))
	})

	t.Run("partial entry falls back per factor", func(t *testing.T) {
		assert.Equal(t, StoreCalibration{1.0, 0.98}, table.For(8))
	})

	t.Run("nil table", func(t *testing.T) {
		var nilTable *CalibrationTable
		assert.Equal(t, DefaultCalibration, nilTable.For(1))
	})
}

func TestArtifactKind_FileName(t *testing.T) {
	assert.Equal(t, "123_transport.pdf", ArtifactTransport.FileName("123"))
	assert.Equal(t, "123.pdf", ArtifactPDF.FileName("123"))
	assert.Equal(t, "123.jpg", ArtifactImage.FileName("123"))
	assert.Equal(t, "123.zpl", ArtifactZPL.FileName("123"))
	assert.Panics(t, func() { ArtifactKind("x").FileName("1") })
}

func TestPercentEvent_Clamps(t *testing.T) {
	assert.Equal(t, 100, PercentEvent(140).Percent)
	assert.Equal(t, 0, PercentEvent(-3).Percent)
	assert.Equal(t, ProgressDone, DoneEvent().Kind)
}
