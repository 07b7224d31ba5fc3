package labeling

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/httpclient"
	"github.com/erp/shipping/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Carrier label formats, as found in the link path.
const (
	FormatPDF = "pdf"
	FormatZIP = "zip"
)

// maxZPLEntry caps the archive entry read into memory.
const maxZPLEntry = 8 << 20

// AcquireRequest identifies the carrier label to download for one order.
type AcquireRequest struct {
	OrderID     int64
	StoreID     int64
	OrderNumber string
	LabelID     string
	Link        string
}

// LabelFormat returns the lowercase extension of the link path, without the
// dot. The query string is ignored.
func LabelFormat(link string) string {
	p := link
	if u, err := url.Parse(link); err == nil {
		p = u.Path
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
}

// ExtractZPL returns the text of the first file in the archive whose name
// ends in .zpl or .txt.
func ExtractZPL(archive []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", fmt.Errorf("%w: open label archive: %v", shipping.ErrFormat, err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.ToLower(f.Name)
		if !strings.HasSuffix(name, ".zpl") && !strings.HasSuffix(name, ".txt") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: open %s: %v", shipping.ErrFormat, f.Name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxZPLEntry))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: read %s: %v", shipping.ErrFormat, f.Name, err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("%w: no zpl entry in label archive", shipping.ErrFormat)
}

// Acquirer downloads carrier labels and stores them as transport PDFs.
type Acquirer struct {
	downloader Downloader
	raster     Rasterizer
	store      ArtifactStore
	records    shipping.LabelRecordRepository
	metrics    Metrics
	logger     *zap.Logger
}

// NewAcquirer creates an Acquirer. Label downloads are single attempt: a
// failed download is left for the next reconciliation.
func NewAcquirer(downloader Downloader, raster Rasterizer, store ArtifactStore, records shipping.LabelRecordRepository, log *zap.Logger) *Acquirer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Acquirer{
		downloader: downloader,
		raster:     raster,
		store:      store,
		records:    records,
		metrics:    nopMetrics{},
		logger:     log.Named("acquirer"),
	}
}

// WithMetrics sets the metrics sink
func (a *Acquirer) WithMetrics(m Metrics) *Acquirer {
	a.metrics = metricsOrNop(m)
	return a
}

// Acquire downloads req.Link, normalizes it to PDF, writes the transport
// artifact and marks the record as "label saved". The record is only
// updated after the file is on disk.
func (a *Acquirer) Acquire(ctx context.Context, req AcquireRequest) (*shipping.LabelRecord, error) {
	if strings.TrimSpace(req.Link) == "" {
		return nil, fmt.Errorf("%w: order %s has no label link", shipping.ErrConfiguration, req.OrderNumber)
	}

	resp, err := a.downloader.Get(ctx, req.Link, httpclient.Options{Retry: &httpclient.SingleAttempt})
	if err != nil {
		return nil, fmt.Errorf("download label: %w", httpclient.Classify(err))
	}

	format := LabelFormat(req.Link)
	var pdf []byte
	switch format {
	case FormatPDF:
		pdf = resp.Body
	case FormatZIP:
		zpl, err := ExtractZPL(resp.Body)
		if err != nil {
			return nil, err
		}
		if pdf, err = a.raster.ZPLToPDF(ctx, zpl); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", shipping.ErrUnsupportedFormat, format)
	}

	filePath, err := a.store.Write(ctx, req.StoreID, shipping.ArtifactTransport, req.OrderNumber, pdf)
	if err != nil {
		return nil, fmt.Errorf("store transport label: %w", err)
	}

	record, err := a.records.FindByOrderNumber(ctx, req.OrderNumber)
	if err != nil {
		return nil, err
	}
	record.MarkLabelSaved(req.LabelID, req.Link)
	if err := a.records.Save(ctx, record); err != nil {
		return nil, err
	}

	a.metrics.LabelAcquired(ctx, req.StoreID, format)
	logger.L(ctx).Info("Carrier label saved",
		zap.String("order_number", req.OrderNumber),
		zap.String("format", format),
		zap.String("path", filePath),
		zap.Int("attempts", resp.Attempts))
	return record, nil
}
