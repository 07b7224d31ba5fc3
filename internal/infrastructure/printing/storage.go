package printing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/erp/shipping/internal/domain/shipping"
	"go.uber.org/zap"
)

// ArtifactStoreConfig contains the root directories of each artifact kind
type ArtifactStoreConfig struct {
	// TransportRoot holds the carrier labels normalized to PDF
	// Default: data/labels
	TransportRoot string
	// PDFRoot holds the composed slip + label PDFs
	// Default: data/pdf
	PDFRoot string
	// ImageRoot holds the rasterized JPEGs
	// Default: data/images
	ImageRoot string
	// ZPLRoot holds the printer bitmaps
	// Default: data/zpl
	ZPLRoot string
	// Logger for operations
	Logger *zap.Logger
}

// ArtifactStore keeps label artifacts on the local file system.
// Path structure: {root}/{store_id}/{file name of the kind}
type ArtifactStore struct {
	roots  map[shipping.ArtifactKind]string
	logger *zap.Logger
}

// NewArtifactStore creates the store and its root directories.
func NewArtifactStore(config *ArtifactStoreConfig) (*ArtifactStore, error) {
	if config == nil {
		config = &ArtifactStoreConfig{}
	}

	roots := map[shipping.ArtifactKind]string{
		shipping.ArtifactTransport: orDefault(config.TransportRoot, "data/labels"),
		shipping.ArtifactPDF:       orDefault(config.PDFRoot, "data/pdf"),
		shipping.ArtifactImage:     orDefault(config.ImageRoot, "data/images"),
		shipping.ArtifactZPL:       orDefault(config.ZPLRoot, "data/zpl"),
	}
	for _, root := range roots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, NewRenderError(ErrCodeStorageFailed,
				fmt.Sprintf("failed to create storage directory: %s", root), err)
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ArtifactStore{roots: roots, logger: logger}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Path returns the location of the artifact. Order numbers that would escape
// the store directory are rejected.
func (s *ArtifactStore) Path(storeID int64, kind shipping.ArtifactKind, orderNumber string) (string, error) {
	root, ok := s.roots[kind]
	if !ok {
		return "", NewRenderError(ErrCodeInvalidPath, "unknown artifact kind "+string(kind), nil)
	}
	if !validOrderNumber(orderNumber) {
		s.logger.Warn("blocked potentially malicious order number", zap.String("order_number", orderNumber))
		return "", NewRenderError(ErrCodeInvalidPath, fmt.Sprintf("invalid order number %q", orderNumber), nil)
	}
	return filepath.Join(root, strconv.FormatInt(storeID, 10), kind.FileName(orderNumber)), nil
}

func validOrderNumber(n string) bool {
	if n == "" || n == "." || n == ".." {
		return false
	}
	return !strings.ContainsAny(n, `/\`) && !strings.Contains(n, "..")
}

// Write stores data atomically: it is written to a temporary file in the
// target directory and renamed over the final path, so readers never see a
// partial artifact.
func (s *ArtifactStore) Write(ctx context.Context, storeID int64, kind shipping.ArtifactKind, orderNumber string, data []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", NewRenderError(ErrCodeStorageFailed, "operation cancelled", ctx.Err())
	default:
	}

	path, err := s.Path(storeID, kind, orderNumber)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", NewRenderError(ErrCodeStorageFailed, "failed to create directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", NewRenderError(ErrCodeStorageFailed, "failed to create temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", NewRenderError(ErrCodeStorageFailed, "failed to write artifact", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", NewRenderError(ErrCodeStorageFailed, "failed to close artifact", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return "", NewRenderError(ErrCodeStorageFailed, "failed to set artifact permissions", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return "", NewRenderError(ErrCodeStorageFailed, "failed to move artifact into place", err)
	}

	s.logger.Debug("artifact stored",
		zap.String("kind", string(kind)),
		zap.String("path", path),
		zap.Int("size", len(data)))
	return path, nil
}

// Read returns the artifact content. A missing file is reported as
// shipping.ErrNotFound.
func (s *ArtifactStore) Read(ctx context.Context, storeID int64, kind shipping.ArtifactKind, orderNumber string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, NewRenderError(ErrCodeStorageFailed, "operation cancelled", ctx.Err())
	default:
	}

	path, err := s.Path(storeID, kind, orderNumber)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewRenderError(ErrCodeNotFound, string(kind)+" artifact not found", err)
		}
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to read artifact", err)
	}
	return data, nil
}

// Exists reports whether the artifact is on disk.
func (s *ArtifactStore) Exists(storeID int64, kind shipping.ArtifactKind, orderNumber string) bool {
	path, err := s.Path(storeID, kind, orderNumber)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// HasAll reports whether every kind is on disk.
func (s *ArtifactStore) HasAll(storeID int64, orderNumber string, kinds ...shipping.ArtifactKind) bool {
	for _, k := range kinds {
		if !s.Exists(storeID, k, orderNumber) {
			return false
		}
	}
	return true
}

// Delete removes an artifact. Deleting a missing artifact is not an error.
func (s *ArtifactStore) Delete(storeID int64, kind shipping.ArtifactKind, orderNumber string) error {
	path, err := s.Path(storeID, kind, orderNumber)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return NewRenderError(ErrCodeStorageFailed, "failed to delete artifact", err)
	}
	return nil
}

// CleanupOlderThan removes artifacts of the given kinds not modified within
// age. Temporary files left by interrupted writes are removed as well.
func (s *ArtifactStore) CleanupOlderThan(ctx context.Context, age time.Duration, kinds ...shipping.ArtifactKind) (int, error) {
	cutoff := time.Now().Add(-age)
	deletedCount := 0

	for _, kind := range kinds {
		root, ok := s.roots[kind]
		if !ok {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // Skip unreadable entries
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(path); err == nil {
					deletedCount++
					s.logger.Debug("deleted old artifact", zap.String("path", path))
				}
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return deletedCount, err
			}
			return deletedCount, NewRenderError(ErrCodeStorageFailed, "cleanup walk failed", err)
		}
	}

	s.logger.Info("artifact cleanup completed",
		zap.Int("deleted", deletedCount),
		zap.Duration("age", age))

	return deletedCount, nil
}
