// Package labeling runs the shipping label pipeline: order synchronization,
// carrier label acquisition, slip composition, batch ZPL export and the
// reconciliation driver tying them together.
package labeling

import (
	"context"
	"iter"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/carrier"
	"github.com/erp/shipping/internal/infrastructure/httpclient"
	"github.com/erp/shipping/internal/infrastructure/printing"
)

// Downloader fetches carrier label links.
type Downloader interface {
	Get(ctx context.Context, url string, opts httpclient.Options) (*httpclient.Response, error)
}

// Rasterizer converts between the label representations.
type Rasterizer interface {
	PDFToImage(pdf []byte) ([]byte, error)
	ImageToZPL(encoded []byte, factor float64) (string, error)
	ZPLToPDF(ctx context.Context, zpl string) ([]byte, error)
}

// ArtifactStore keeps the per-order files on disk.
type ArtifactStore interface {
	Write(ctx context.Context, storeID int64, kind shipping.ArtifactKind, orderNumber string, data []byte) (string, error)
	Read(ctx context.Context, storeID int64, kind shipping.ArtifactKind, orderNumber string) ([]byte, error)
	Exists(storeID int64, kind shipping.ArtifactKind, orderNumber string) bool
	HasAll(storeID int64, orderNumber string, kinds ...shipping.ArtifactKind) bool
	CleanupOlderThan(ctx context.Context, age time.Duration, kinds ...shipping.ArtifactKind) (int, error)
}

// SlipRenderer draws the packing slip page.
type SlipRenderer interface {
	Render(data printing.SlipData) ([]byte, error)
}

// Mirror copies composed artifacts to remote storage.
type Mirror interface {
	Mirror(ctx context.Context, storeID int64, kind shipping.ArtifactKind, orderNumber string, data []byte) error
}

// LabelIssuer asks the carrier for the label link of an order.
type LabelIssuer interface {
	IssueLabel(ctx context.Context, storeID, orderID int64) (*carrier.LabelLink, error)
}

// OrderSource reads orders and invoices from the carrier API.
type OrderSource interface {
	Order(ctx context.Context, storeID, orderID int64) (*carrier.OrderDetail, error)
	Invoice(ctx context.Context, storeID, invoiceID int64) (*carrier.InvoiceDetail, error)
}

// CarrierAPI is everything reconciliation needs from the carrier.
type CarrierAPI interface {
	LabelIssuer
	OrderSource
	Stores() []int64
	PendingOrders(ctx context.Context, storeID int64, status int) (iter.Seq[carrier.OrderSummary], error)
}

// Metrics receives pipeline measurements.
type Metrics interface {
	LabelAcquired(ctx context.Context, storeID int64, format string)
	LabelComposed(ctx context.Context, storeID int64, took time.Duration)
	Failure(ctx context.Context, stage, kind string)
}

type nopMetrics struct{}

func (nopMetrics) LabelAcquired(context.Context, int64, string)        {}
func (nopMetrics) LabelComposed(context.Context, int64, time.Duration) {}
func (nopMetrics) Failure(context.Context, string, string)             {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
