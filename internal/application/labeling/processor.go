package labeling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/erp/shipping/internal/domain/shared"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/logger"
	"github.com/erp/shipping/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrOrderInFlight is returned by ProcessOrder when another caller is
// already processing the same order.
var ErrOrderInFlight = shared.NewDomainError("ORDER_IN_FLIGHT", "Order is already being processed")

// Processor brings one order to the fully composed state: label issued,
// transport PDF stored and derived artifacts written.
type Processor struct {
	issuer     LabelIssuer
	acquirer   *Acquirer
	compositor *Compositor
	records    shipping.LabelRecordRepository
	store      ArtifactStore
	metrics    Metrics
	logger     *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewProcessor creates a Processor
func NewProcessor(
	issuer LabelIssuer,
	acquirer *Acquirer,
	compositor *Compositor,
	records shipping.LabelRecordRepository,
	store ArtifactStore,
	log *zap.Logger,
) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		issuer:     issuer,
		acquirer:   acquirer,
		compositor: compositor,
		records:    records,
		store:      store,
		metrics:    nopMetrics{},
		logger:     log.Named("processor"),
		inFlight:   make(map[string]struct{}),
	}
}

// WithMetrics sets the metrics sink
func (p *Processor) WithMetrics(m Metrics) *Processor {
	p.metrics = metricsOrNop(m)
	return p
}

func (p *Processor) claim(orderNumber string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[orderNumber]; busy {
		return false
	}
	p.inFlight[orderNumber] = struct{}{}
	return true
}

func (p *Processor) release(orderNumber string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, orderNumber)
}

// ProcessOrder runs the missing pipeline steps of orderNumber. A failure is
// written to the record's lastError before it is returned.
func (p *Processor) ProcessOrder(ctx context.Context, orderNumber string) error {
	if !p.claim(orderNumber) {
		return fmt.Errorf("order %s: %w", orderNumber, ErrOrderInFlight)
	}
	defer p.release(orderNumber)

	record, err := p.records.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return fmt.Errorf("label record %s: %w", orderNumber, err)
	}
	ctx = logger.WithContext(ctx, p.logger)
	ctx = logger.WithOrder(ctx, record.StoreID, orderNumber)

	stage, err := p.process(ctx, record)
	if err == nil {
		return nil
	}

	record.RecordFailure(err)
	if saveErr := p.records.Save(ctx, record); saveErr != nil {
		logger.L(ctx).Error("Failed to record pipeline failure", zap.Error(saveErr))
	}
	p.metrics.Failure(ctx, stage, shipping.Kind(err))
	logger.L(ctx).Warn("Order processing failed",
		zap.String("stage", stage),
		zap.String("kind", shipping.Kind(err)),
		zap.Error(err))
	return err
}

func (p *Processor) process(ctx context.Context, record *shipping.LabelRecord) (string, error) {
	if !record.LabelSaved() || !p.store.Exists(record.StoreID, shipping.ArtifactTransport, record.OrderNumber) {
		saved, err := p.acquire(ctx, record)
		if err != nil {
			return telemetry.StageAcquire, err
		}
		*record = *saved
	}

	if p.store.HasAll(record.StoreID, record.OrderNumber, shipping.DerivedArtifacts...) {
		return "", nil
	}
	if _, err := p.compositor.Compose(ctx, record.OrderNumber); err != nil {
		return telemetry.StageCompose, err
	}
	return "", nil
}

// acquire downloads the label, issuing a fresh link when the record has
// none or the stored one is gone.
func (p *Processor) acquire(ctx context.Context, record *shipping.LabelRecord) (*shipping.LabelRecord, error) {
	req := AcquireRequest{
		OrderID:     record.OrderID,
		StoreID:     record.StoreID,
		OrderNumber: record.OrderNumber,
		LabelID:     record.LabelID,
		Link:        record.DownloadLink,
	}
	if req.Link != "" {
		saved, err := p.acquirer.Acquire(ctx, req)
		if !errors.Is(err, shipping.ErrNotFound) {
			return saved, err
		}
		logger.L(ctx).Info("Stored label link expired, issuing a new one", zap.String("link", req.Link))
	}

	link, err := p.issuer.IssueLabel(ctx, record.StoreID, record.OrderID)
	if err != nil {
		return nil, err
	}
	req.LabelID, req.Link = link.LabelID(), link.Link
	return p.acquirer.Acquire(ctx, req)
}

// FollowUpPayload is the outbox payload of TopicFollowUp.
type FollowUpPayload struct {
	OrderNumber string `json:"order_number"`
	StoreID     int64  `json:"store_id"`
}

// HandleFollowUp processes the order named by an outbox entry. Orders being
// processed elsewhere are treated as handled.
func (p *Processor) HandleFollowUp(ctx context.Context, entry *shared.OutboxEntry) error {
	var payload FollowUpPayload
	if err := json.Unmarshal(entry.Payload, &payload); err != nil || payload.OrderNumber == "" {
		return fmt.Errorf("%w: follow-up %s has an invalid payload", shipping.ErrFormat, entry.ID)
	}
	err := p.ProcessOrder(ctx, payload.OrderNumber)
	if errors.Is(err, ErrOrderInFlight) {
		return nil
	}
	return err
}
