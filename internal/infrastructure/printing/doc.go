// Package printing produces and stores the printable label documents.
//
// This package contains:
//   - SlipRenderer, which lays out the packing slip as a list of drawing
//     operations and paints them onto a fixed-size PDF page with fpdf
//   - Merge, which places the packing slip and the carrier label side by side
//     on one page
//   - ArtifactStore, which persists transport labels and composed artifacts
//     under per-store directories with atomic writes
//
// Example usage:
//
//	store, err := NewArtifactStore(&ArtifactStoreConfig{PDFRoot: "data/pdf"})
//	if err != nil {
//	    return err
//	}
//	slip, err := NewSlipRenderer(logger).Render(SlipData{Order: order, Invoice: inv, Items: items})
//	if err != nil {
//	    return err
//	}
//	composed, err := Merge(slip, transportPDF, calibration.ShippingLabelScaleFactor)
//	if err != nil {
//	    return err
//	}
//	path, err := store.Write(ctx, order.StoreID, shipping.ArtifactPDF, order.OrderNumber, composed)
package printing
