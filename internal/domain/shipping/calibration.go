package shipping

// StoreCalibration holds the per-store size corrections applied when
// composing labels.
type StoreCalibration struct {
	// ShippingLabelScaleFactor scales the carrier label inside its half page.
	ShippingLabelScaleFactor float64
	// BitmapScaleFactor scales the raster image before ZPL encoding.
	BitmapScaleFactor float64
}

// DefaultCalibration applies to stores without an explicit entry.
var DefaultCalibration = StoreCalibration{
	ShippingLabelScaleFactor: 1.08,
	BitmapScaleFactor:        0.98,
}

// CalibrationTable is a typed lookup of StoreCalibration by store id.
type CalibrationTable struct {
	def    StoreCalibration
	stores map[int64]StoreCalibration
}

// NewCalibrationTable creates a table. Zero factors in def or in an entry are
// replaced by the corresponding default factor.
func NewCalibrationTable(def StoreCalibration, stores map[int64]StoreCalibration) *CalibrationTable {
	def = def.withDefaults(DefaultCalibration)
	t := &CalibrationTable{def: def, stores: make(map[int64]StoreCalibration, len(stores))}
	for id, c := range stores {
		t.stores[id] = c.withDefaults(def)
	}
	return t
}

// For returns the calibration of storeID, or the table default.
func (t *CalibrationTable) For(storeID int64) StoreCalibration {
	if t == nil {
		return DefaultCalibration
	}
	if c, ok := t.stores[storeID]; ok {
		return c
	}
	return t.def
}

func (c StoreCalibration) withDefaults(def StoreCalibration) StoreCalibration {
	if c.ShippingLabelScaleFactor <= 0 {
		c.ShippingLabelScaleFactor = def.ShippingLabelScaleFactor
	}
	if c.BitmapScaleFactor <= 0 {
		c.BitmapScaleFactor = def.BitmapScaleFactor
	}
	return c
}
