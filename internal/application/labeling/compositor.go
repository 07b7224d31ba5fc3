package labeling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/logger"
	"github.com/erp/shipping/internal/infrastructure/printing"
	"github.com/erp/shipping/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrentCompose bounds the CPU-heavy composes running at once.
const DefaultMaxConcurrentCompose = 2

// MergeFunc places the carrier label, scaled by scale, next to the slip.
type MergeFunc func(slip, label []byte, scale float64) ([]byte, error)

// CompositorConfig configures a Compositor
type CompositorConfig struct {
	MaxConcurrent int
	Calibration   *shipping.CalibrationTable
	// Merge defaults to printing.Merge.
	Merge  MergeFunc
	Logger *zap.Logger
}

// Compositor merges the packing slip with the carrier label and derives the
// image and ZPL artifacts from the result.
type Compositor struct {
	orders  shipping.OrderRepository
	records shipping.LabelRecordRepository
	logos   shipping.LogoRepository
	store   ArtifactStore
	slips   SlipRenderer
	raster  Rasterizer
	merge   MergeFunc
	mirror  Mirror
	metrics Metrics

	calibration *shipping.CalibrationTable
	sem         chan struct{}
	logger      *zap.Logger
}

// NewCompositor creates a Compositor
func NewCompositor(
	orders shipping.OrderRepository,
	records shipping.LabelRecordRepository,
	logos shipping.LogoRepository,
	store ArtifactStore,
	slips SlipRenderer,
	raster Rasterizer,
	cfg CompositorConfig,
) *Compositor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrentCompose
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Merge == nil {
		cfg.Merge = printing.Merge
	}
	return &Compositor{
		orders:      orders,
		records:     records,
		logos:       logos,
		store:       store,
		slips:       slips,
		raster:      raster,
		merge:       cfg.Merge,
		metrics:     nopMetrics{},
		calibration: cfg.Calibration,
		sem:         make(chan struct{}, cfg.MaxConcurrent),
		logger:      cfg.Logger.Named("compositor"),
	}
}

// WithMirror uploads every composed artifact to m after it is written locally
func (c *Compositor) WithMirror(m Mirror) *Compositor {
	c.mirror = m
	return c
}

// WithMetrics sets the metrics sink
func (c *Compositor) WithMetrics(m Metrics) *Compositor {
	c.metrics = metricsOrNop(m)
	return c
}

type composeInput struct {
	order   *shipping.Order
	items   []shipping.LineItem
	invoice *shipping.Invoice
	logo    []byte
	record  *shipping.LabelRecord
}

// load fetches the five records compose needs in parallel. Lookups that find
// nothing are reported after all of them finished, so the error returned for
// an incomplete order does not depend on scheduling.
func (c *Compositor) load(ctx context.Context, orderNumber string) (*composeInput, error) {
	var (
		in                                   composeInput
		orderErr, invoiceErr, logoErr, recErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		in.order, orderErr = c.orders.FindByNumber(gctx, orderNumber)
		return fatal(orderErr)
	})
	g.Go(func() error {
		items, err := c.orders.ItemsByOrderNumbers(gctx, []string{orderNumber})
		in.items = items[orderNumber]
		return err
	})
	g.Go(func() error {
		in.invoice, invoiceErr = c.orders.InvoiceByOrderNumber(gctx, orderNumber)
		return fatal(invoiceErr)
	})
	g.Go(func() error {
		in.logo, logoErr = c.logos.FindByOrderNumber(gctx, orderNumber)
		return fatal(logoErr)
	})
	g.Go(func() error {
		in.record, recErr = c.records.FindByOrderNumber(gctx, orderNumber)
		return fatal(recErr)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch {
	case recErr != nil:
		return nil, fmt.Errorf("label record %s: %w", orderNumber, recErr)
	case orderErr != nil:
		return nil, fmt.Errorf("order %s: %w", orderNumber, orderErr)
	case len(in.items) == 0:
		return nil, fmt.Errorf("%w: order %s has no items", shipping.ErrConfiguration, orderNumber)
	case invoiceErr != nil:
		return nil, fmt.Errorf("%w: order %s has no invoice", shipping.ErrConfiguration, orderNumber)
	case logoErr != nil:
		return nil, fmt.Errorf("%w: store %d has no logo", shipping.ErrConfiguration, in.order.StoreID)
	}
	return &in, nil
}

// fatal drops not-found errors; load turns them into taxonomy errors.
func fatal(err error) error {
	if errors.Is(err, shipping.ErrNotFound) {
		return nil
	}
	return err
}

// Compose renders the slip of orderNumber next to its carrier label and
// writes the PDF, JPEG and ZPL artifacts. It returns the composed PDF.
func (c *Compositor) Compose(ctx context.Context, orderNumber string) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "labels", "compose", telemetry.SpanAttrOrderNumber, orderNumber)
	defer span.End()

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.sem }()

	start := time.Now()
	pdf, storeID, paths, err := c.compose(ctx, orderNumber)
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.SetAttributes(span, telemetry.SpanAttrErrorKind, shipping.Kind(err))
		return nil, err
	}
	took := time.Since(start)
	c.metrics.LabelComposed(ctx, storeID, took)
	logger.L(ctx).Info("Label composed",
		zap.String("order_number", orderNumber),
		zap.Int64("store_id", storeID),
		zap.Any("artifacts", paths.Fields()),
		zap.Duration("took", took))
	return pdf, nil
}

func (c *Compositor) compose(ctx context.Context, orderNumber string) ([]byte, int64, shipping.ArtifactSet, error) {
	var paths shipping.ArtifactSet
	in, err := c.load(ctx, orderNumber)
	if err != nil {
		return nil, 0, paths, err
	}
	storeID := in.record.StoreID

	label, err := c.store.Read(ctx, storeID, shipping.ArtifactTransport, orderNumber)
	if errors.Is(err, shipping.ErrNotFound) {
		return nil, storeID, paths, fmt.Errorf("order %s: %w", orderNumber, shipping.ErrTransportFileMissing)
	}
	if err != nil {
		return nil, storeID, paths, err
	}

	cal := c.calibration.For(storeID)
	span := trace.SpanFromContext(ctx)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrStoreID, storeID,
		telemetry.SpanAttrScale, cal.BitmapScaleFactor)

	slip, err := c.slips.Render(printing.SlipData{
		Order:   *in.order,
		Invoice: *in.invoice,
		Items:   in.items,
		Logo:    in.logo,
	})
	if err != nil {
		return nil, storeID, paths, err
	}
	pdf, err := c.merge(slip, label, cal.ShippingLabelScaleFactor)
	if err != nil {
		return nil, storeID, paths, err
	}
	if paths.PDFPath, err = c.persist(ctx, storeID, shipping.ArtifactPDF, orderNumber, pdf); err != nil {
		return nil, storeID, paths, err
	}

	img, err := c.raster.PDFToImage(pdf)
	if err != nil {
		return nil, storeID, paths, err
	}
	if paths.ImagePath, err = c.persist(ctx, storeID, shipping.ArtifactImage, orderNumber, img); err != nil {
		return nil, storeID, paths, err
	}

	zpl, err := c.raster.ImageToZPL(img, cal.BitmapScaleFactor)
	if err != nil {
		return nil, storeID, paths, err
	}
	if paths.ZPLPath, err = c.persist(ctx, storeID, shipping.ArtifactZPL, orderNumber, []byte(zpl)); err != nil {
		return nil, storeID, paths, err
	}
	return pdf, storeID, paths, nil
}

// persist writes one artifact locally, then mirrors it. Mirror failures are
// logged only. It returns the local path.
func (c *Compositor) persist(ctx context.Context, storeID int64, kind shipping.ArtifactKind, orderNumber string, data []byte) (string, error) {
	path, err := c.store.Write(ctx, storeID, kind, orderNumber, data)
	if err != nil {
		return "", fmt.Errorf("store %s artifact: %w", kind, err)
	}
	if c.mirror == nil {
		return path, nil
	}
	if err := c.mirror.Mirror(ctx, storeID, kind, orderNumber, data); err != nil {
		logger.L(ctx).Warn("Failed to mirror artifact",
			zap.String("order_number", orderNumber),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	return path, nil
}

// EnsurePDF returns the stored composite of orderNumber, composing it first
// when any derived artifact is missing.
func (c *Compositor) EnsurePDF(ctx context.Context, orderNumber string) ([]byte, error) {
	record, err := c.records.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("label record %s: %w", orderNumber, err)
	}
	if c.store.HasAll(record.StoreID, orderNumber, shipping.DerivedArtifacts...) {
		pdf, err := c.store.Read(ctx, record.StoreID, shipping.ArtifactPDF, orderNumber)
		if err == nil {
			return pdf, nil
		}
		c.logger.Warn("Stored composite unreadable, composing again",
			zap.String("order_number", orderNumber), zap.Error(err))
	}
	return c.Compose(ctx, orderNumber)
}

// BatchResult is the concatenated ZPL of a picking batch.
type BatchResult struct {
	ZPL      string   `json:"zpl"`
	Included []string `json:"included"`
	Skipped  []string `json:"skipped"`
}

// BatchZPL builds the batch of orderNumbers and counts a print for every
// included order.
func (c *Compositor) BatchZPL(ctx context.Context, orderNumbers []string) (*BatchResult, error) {
	result, err := c.BuildBatch(ctx, orderNumbers)
	if err != nil {
		return nil, err
	}
	if err := c.MarkPrinted(ctx, result.Included...); err != nil {
		return nil, err
	}
	return result, nil
}

// BuildBatch concatenates the stored ZPL of orderNumbers, ordered by the
// lowest SKU of each order. Orders without a ZPL artifact are skipped.
// Print counts are left untouched.
func (c *Compositor) BuildBatch(ctx context.Context, orderNumbers []string) (*BatchResult, error) {
	numbers := uniqueNumbers(orderNumbers)
	result := &BatchResult{Included: []string{}, Skipped: []string{}}
	if len(numbers) == 0 {
		return result, nil
	}

	records, err := c.records.FindByOrderNumbers(ctx, numbers)
	if err != nil {
		return nil, err
	}
	storeOf := make(map[string]int64, len(records))
	for _, r := range records {
		storeOf[r.OrderNumber] = r.StoreID
	}
	items, err := c.orders.ItemsByOrderNumbers(ctx, numbers)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(numbers, func(a, b string) int {
		return strings.Compare(shipping.LowestSKU(items[a]), shipping.LowestSKU(items[b]))
	})

	parts := make([]string, 0, len(numbers))
	for _, n := range numbers {
		storeID, ok := storeOf[n]
		if !ok {
			result.Skipped = append(result.Skipped, n)
			continue
		}
		zpl, err := c.store.Read(ctx, storeID, shipping.ArtifactZPL, n)
		if err != nil {
			if !errors.Is(err, shipping.ErrNotFound) {
				c.logger.Warn("Failed to read zpl artifact", zap.String("order_number", n), zap.Error(err))
			}
			result.Skipped = append(result.Skipped, n)
			continue
		}
		parts = append(parts, string(zpl))
		result.Included = append(result.Included, n)
	}
	result.ZPL = strings.Join(parts, "\n")

	c.logger.Info("ZPL batch built",
		zap.Int("included", len(result.Included)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// MarkPrinted counts one print for each of orderNumbers.
func (c *Compositor) MarkPrinted(ctx context.Context, orderNumbers ...string) error {
	if len(orderNumbers) == 0 {
		return nil
	}
	if _, err := c.records.IncrementPrintCount(ctx, orderNumbers...); err != nil {
		return fmt.Errorf("mark batch printed: %w", err)
	}
	return nil
}

// RecordPrint counts one physical print of orderNumber and returns the
// updated record.
func (c *Compositor) RecordPrint(ctx context.Context, orderNumber string) (*shipping.LabelRecord, error) {
	rows, err := c.records.IncrementPrintCount(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("label record %s: %w", orderNumber, shipping.ErrNotFound)
	}
	return c.records.FindByOrderNumber(ctx, orderNumber)
}

func uniqueNumbers(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, n := range in {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
