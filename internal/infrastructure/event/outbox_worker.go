package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/shipping/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler processes the payload of one outbox entry. A returned error
// schedules a retry with backoff until the entry's retry cap.
type Handler func(ctx context.Context, entry *shared.OutboxEntry) error

// OutboxWorkerConfig holds configuration for the outbox worker
type OutboxWorkerConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	StaleAfter       time.Duration
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() OutboxWorkerConfig {
	return OutboxWorkerConfig{
		BatchSize:        20,
		PollInterval:     2 * time.Second,
		MaxRetries:       shared.DefaultMaxRetries,
		StaleAfter:       10 * time.Minute,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxWorker dispatches due outbox entries to the handler registered for
// their topic.
type OutboxWorker struct {
	repo   shared.OutboxRepository
	config OutboxWorkerConfig
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(repo shared.OutboxRepository, config OutboxWorkerConfig, logger *zap.Logger) *OutboxWorker {
	def := DefaultOutboxWorkerConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxWorker{
		repo:     repo,
		config:   config,
		logger:   logger.Named("outbox"),
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler of topic, replacing any previous one.
func (w *OutboxWorker) Handle(topic string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[topic] = h
}

// Start starts the background processing
func (w *OutboxWorker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	if n, err := w.repo.ResetStale(ctx, time.Now().Add(-w.config.StaleAfter)); err != nil {
		w.logger.Warn("failed to release stale outbox claims", zap.Error(err))
	} else if n > 0 {
		w.logger.Info("released stale outbox claims", zap.Int64("count", n))
	}

	w.wg.Add(1)
	go w.processLoop(ctx)

	if w.config.CleanupRetention > 0 {
		w.wg.Add(1)
		go w.cleanupLoop(ctx)
	}

	w.logger.Info("outbox worker started",
		zap.Int("batch_size", w.config.BatchSize),
		zap.Duration("poll_interval", w.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the worker
func (w *OutboxWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("outbox worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *OutboxWorker) processLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch claims and handles one batch of due entries. It returns the
// number of entries claimed.
func (w *OutboxWorker) ProcessBatch(ctx context.Context) int {
	due, err := w.repo.FindDue(ctx, time.Now(), w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to find due entries", zap.Error(err))
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	ids := make([]uuid.UUID, len(due))
	for i, e := range due {
		ids[i] = e.ID
	}

	claimed, err := w.repo.Claim(ctx, ids)
	if err != nil {
		w.logger.Error("failed to mark entries as processing", zap.Error(err))
		return 0
	}

	for _, entry := range claimed {
		w.processEntry(ctx, entry)
	}
	return len(claimed)
}

func (w *OutboxWorker) processEntry(ctx context.Context, entry *shared.OutboxEntry) {
	w.mu.RLock()
	h, ok := w.handlers[entry.Topic]
	w.mu.RUnlock()

	var err error
	if !ok {
		err = fmt.Errorf("no handler for topic %q", entry.Topic)
	} else {
		err = w.invoke(ctx, h, entry)
	}

	if err != nil {
		if w.config.MaxRetries > 0 {
			entry.MaxRetries = w.config.MaxRetries
		}
		entry.MarkFailed(err.Error())
		fields := []zap.Field{
			zap.String("entry_id", entry.ID.String()),
			zap.String("topic", entry.Topic),
			zap.String("key", entry.Key),
			zap.Int("retry_count", entry.RetryCount),
			zap.Error(err),
		}
		if entry.IsDead() {
			w.logger.Warn("outbox entry moved to dead letter", fields...)
		} else {
			w.logger.Error("outbox entry failed", fields...)
		}
		if updateErr := w.repo.Update(ctx, entry); updateErr != nil {
			w.logger.Error("failed to update entry", zap.Error(updateErr))
		}
		return
	}

	entry.MarkSent()
	if err := w.repo.Update(ctx, entry); err != nil {
		w.logger.Error("failed to mark entry as sent",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("outbox entry processed",
		zap.String("entry_id", entry.ID.String()),
		zap.String("topic", entry.Topic),
		zap.String("key", entry.Key),
	)
}

func (w *OutboxWorker) invoke(ctx context.Context, h Handler, entry *shared.OutboxEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, entry)
}

func (w *OutboxWorker) cleanupLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *OutboxWorker) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-w.config.CleanupRetention)
	deleted, err := w.repo.PurgeSent(ctx, cutoff)
	if err != nil {
		w.logger.Error("failed to cleanup old entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		w.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
