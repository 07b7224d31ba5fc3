package labeling

import (
	"context"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"go.uber.org/zap"
)

// CleanupTask is the scheduler name of Cleaner.Run.
const CleanupTask = "artifact-cleanup"

// DefaultRetention is how long derived artifacts are kept.
const DefaultRetention = 90 * 24 * time.Hour

// Cleaner removes derived artifacts that outlived their retention. Transport
// labels are kept: they cannot be rebuilt once the carrier link expires.
type Cleaner struct {
	store     ArtifactStore
	retention time.Duration
	logger    *zap.Logger
}

// NewCleaner creates a Cleaner
func NewCleaner(store ArtifactStore, retention time.Duration, log *zap.Logger) *Cleaner {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{store: store, retention: retention, logger: log.Named("cleaner")}
}

// Run deletes the expired artifacts once.
func (c *Cleaner) Run(ctx context.Context) error {
	n, err := c.store.CleanupOlderThan(ctx, c.retention, shipping.DerivedArtifacts...)
	if err != nil {
		return err
	}
	if n > 0 {
		c.logger.Info("Expired artifacts removed",
			zap.Int("removed", n),
			zap.Duration("retention", c.retention))
	}
	return nil
}
