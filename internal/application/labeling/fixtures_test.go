package labeling_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"github.com/erp/shipping/internal/application/labeling"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/carrier"
	"github.com/erp/shipping/internal/infrastructure/config"
	"github.com/erp/shipping/internal/infrastructure/httpclient"
	"github.com/erp/shipping/internal/infrastructure/persistence"
	infraprinting "github.com/erp/shipping/internal/infrastructure/printing"
	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// Mock Implementations
// =============================================================================

type MockDownloader struct {
	mock.Mock
}

func (m *MockDownloader) Get(ctx context.Context, url string, opts httpclient.Options) (*httpclient.Response, error) {
	args := m.Called(ctx, url, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*httpclient.Response), args.Error(1)
}

type MockRasterizer struct {
	mock.Mock
}

func (m *MockRasterizer) PDFToImage(pdf []byte) ([]byte, error) {
	args := m.Called(pdf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRasterizer) ImageToZPL(encoded []byte, factor float64) (string, error) {
	args := m.Called(encoded, factor)
	return args.String(0), args.Error(1)
}

func (m *MockRasterizer) ZPLToPDF(ctx context.Context, zpl string) ([]byte, error) {
	args := m.Called(ctx, zpl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockCarrier struct {
	mock.Mock
}

func (m *MockCarrier) Stores() []int64 {
	args := m.Called()
	return args.Get(0).([]int64)
}

func (m *MockCarrier) PendingOrders(ctx context.Context, storeID int64, status int) (iter.Seq[carrier.OrderSummary], error) {
	args := m.Called(ctx, storeID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(iter.Seq[carrier.OrderSummary]), args.Error(1)
}

func (m *MockCarrier) Order(ctx context.Context, storeID, orderID int64) (*carrier.OrderDetail, error) {
	args := m.Called(ctx, storeID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carrier.OrderDetail), args.Error(1)
}

func (m *MockCarrier) Invoice(ctx context.Context, storeID, invoiceID int64) (*carrier.InvoiceDetail, error) {
	args := m.Called(ctx, storeID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carrier.InvoiceDetail), args.Error(1)
}

func (m *MockCarrier) IssueLabel(ctx context.Context, storeID, orderID int64) (*carrier.LabelLink, error) {
	args := m.Called(ctx, storeID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*carrier.LabelLink), args.Error(1)
}

type failingMirror struct{ calls int }

func (f *failingMirror) Mirror(context.Context, int64, shipping.ArtifactKind, string, []byte) error {
	f.calls++
	return shipping.ErrIO
}

// =============================================================================
// Test environment
// =============================================================================

const testStore int64 = 7

type testEnv struct {
	db      *persistence.Database
	orders  *persistence.GormOrderRepository
	records *persistence.GormLabelRecordRepository
	logos   *persistence.GormLogoRepository
	writer  *persistence.GormProjectionWriter
	store   *infraprinting.ArtifactStore

	downloader *MockDownloader
	raster     *MockRasterizer
	carrier    *MockCarrier
	logger     *zap.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: "file::memory:", LogLevel: "silent"}, logger)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	root := t.TempDir()
	store, err := infraprinting.NewArtifactStore(&infraprinting.ArtifactStoreConfig{
		TransportRoot: filepath.Join(root, "labels"),
		PDFRoot:       filepath.Join(root, "pdf"),
		ImageRoot:     filepath.Join(root, "images"),
		ZPLRoot:       filepath.Join(root, "zpl"),
		Logger:        logger,
	})
	require.NoError(t, err)

	return &testEnv{
		db:         db,
		orders:     persistence.NewGormOrderRepository(db.DB),
		records:    persistence.NewGormLabelRecordRepository(db.DB),
		logos:      persistence.NewGormLogoRepository(db.DB),
		writer:     persistence.NewGormProjectionWriter(db.DB),
		store:      store,
		downloader: new(MockDownloader),
		raster:     new(MockRasterizer),
		carrier:    new(MockCarrier),
		logger:     logger,
	}
}

// seedOrder stores a complete order of testStore with one item of sku and a
// fresh label record.
func (e *testEnv) seedOrder(t *testing.T, orderID int64, number, sku string) {
	t.Helper()
	ctx := context.Background()
	order := &shipping.Order{
		OrderID:     orderID,
		StoreID:     testStore,
		OrderNumber: number,
		Recipient: shipping.Recipient{
			Name:   "Maria Souza",
			Street: "Rua das Flores",
			Number: "12",
			City:   "Curitiba",
			State:  "PR",
		},
	}
	items := []shipping.LineItem{{SKU: sku, Description: "Caneca " + sku, Quantity: 1}}
	invoice := &shipping.Invoice{
		Number:    "1001",
		Series:    "1",
		AccessKey: "41240312345678000190550010000010011000010010",
		IssuedAt:  time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC),
	}
	require.NoError(t, e.orders.Upsert(ctx, order, items, invoice))
	require.NoError(t, e.records.CreateIfAbsent(ctx, shipping.NewLabelRecord(orderID, testStore, number)))
}

func (e *testEnv) seedLogo(t *testing.T) {
	t.Helper()
	require.NoError(t, e.logos.Save(context.Background(), testStore, pngLogo(t)))
}

func (e *testEnv) acquirer() *labeling.Acquirer {
	return labeling.NewAcquirer(e.downloader, e.raster, e.store, e.records, e.logger)
}

func (e *testEnv) compositor(cal *shipping.CalibrationTable) *labeling.Compositor {
	return labeling.NewCompositor(e.orders, e.records, e.logos, e.store,
		infraprinting.NewSlipRenderer(e.logger), e.raster,
		labeling.CompositorConfig{Calibration: cal, Logger: e.logger})
}

func (e *testEnv) processor() *labeling.Processor {
	return labeling.NewProcessor(e.carrier, e.acquirer(), e.compositor(nil), e.records, e.store, e.logger)
}

// expectCompose stubs the rasterizer calls of one successful compose.
func (e *testEnv) expectCompose(factor float64, zpl string) {
	e.raster.On("PDFToImage", mock.Anything).Return([]byte("jpeg-bytes"), nil).Once()
	e.raster.On("ImageToZPL", []byte("jpeg-bytes"), factor).Return(zpl, nil).Once()
}

func carrierPDF(t *testing.T) []byte {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A6", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "CARRIER")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func pngLogo(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	for x := range 40 {
		img.SetGray(x, 10, color.Gray{Y: 0})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func orderDetail(t *testing.T, raw string) *carrier.OrderDetail {
	t.Helper()
	var d carrier.OrderDetail
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	return &d
}
