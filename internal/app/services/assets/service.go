package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopforge/shopforge/internal/app/domain/asset"
	"github.com/shopforge/shopforge/internal/app/storage"
	"github.com/shopforge/shopforge/internal/assetstorage"
	"github.com/shopforge/shopforge/internal/events"
	"github.com/shopforge/shopforge/internal/jobqueue"
	"github.com/shopforge/shopforge/pkg/logger"
)

// QueueName is the job queue finishing uploads (checksum, preview).
const QueueName = "process-asset"

// ProcessPayload is the job payload for asset post-processing.
type ProcessPayload struct {
	AssetID string `json:"asset_id"`
}

// Service stores asset files behind a storage strategy and their metadata in
// the asset store.
type Service struct {
	store storage.AssetStore
	files assetstorage.Strategy
	bus   *events.Bus
	log   *logger.Logger

	queue *jobqueue.Queue
}

// New creates a configured assets service.
func New(store storage.AssetStore, files assetstorage.Strategy, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("assets")
	}
	if files == nil {
		files = assetstorage.NewMemoryStrategy()
	}
	return &Service{store: store, files: files, bus: bus, log: log}
}

// AttachQueue binds the post-processing queue. The queue's process func must
// be ProcessAssetJob.
func (s *Service) AttachQueue(q *jobqueue.Queue) { s.queue = q }

// Upload stores the file bytes and a metadata record, then schedules
// checksum and preview generation in the background.
func (s *Service) Upload(ctx context.Context, fileName, mimeType string, r io.Reader) (asset.Asset, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return asset.Asset{}, fmt.Errorf("file name is required")
	}

	counter := &countingReader{r: r}
	identifier, err := s.files.Write(ctx, fileName, counter)
	if err != nil {
		return asset.Asset{}, fmt.Errorf("store asset file: %w", err)
	}

	a, err := s.store.CreateAsset(ctx, asset.Asset{
		Name:      fileName,
		MimeType:  mimeType,
		SizeBytes: counter.n,
		Source:    identifier,
	})
	if err != nil {
		// Metadata failed; don't leak the file.
		_ = s.files.Delete(ctx, identifier)
		return asset.Asset{}, err
	}

	s.log.WithField("asset_id", a.ID).
		WithField("file", fileName).
		WithField("bytes", a.SizeBytes).
		Info("asset uploaded")
	if s.bus != nil {
		s.bus.Publish(events.New(events.AssetCreated, "asset", a.ID, map[string]any{"name": a.Name}))
	}
	if s.queue != nil {
		if _, err := s.queue.Add(ctx, ProcessPayload{AssetID: a.ID}); err != nil {
			s.log.WithError(err).WithField("asset_id", a.ID).Warn("enqueue asset processing failed")
		}
	}
	return a, nil
}

// ProcessAssetJob computes the stored file's checksum and registers the
// preview identifier. Queue processor for QueueName.
func (s *Service) ProcessAssetJob(ctx context.Context, job *jobqueue.ActiveJob) (any, error) {
	var payload ProcessPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return nil, err
	}

	a, err := s.store.GetAsset(ctx, payload.AssetID)
	if err != nil {
		return nil, err
	}

	rc, err := s.files.Read(ctx, a.Source)
	if err != nil {
		return nil, fmt.Errorf("read asset file: %w", err)
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return nil, fmt.Errorf("checksum asset: %w", err)
	}
	a.Checksum = hex.EncodeToString(h.Sum(nil))
	// Preview generation (resizing) is plugin territory; the source file
	// doubles as preview here.
	a.Preview = a.Source

	if _, err := s.store.UpdateAsset(ctx, a); err != nil {
		return nil, err
	}
	return map[string]string{"checksum": a.Checksum}, nil
}

// Get fetches asset metadata.
func (s *Service) Get(ctx context.Context, id string) (asset.Asset, error) {
	return s.store.GetAsset(ctx, id)
}

// List returns all assets.
func (s *Service) List(ctx context.Context) ([]asset.Asset, error) {
	return s.store.ListAssets(ctx)
}

// Open returns the file stream and metadata for serving.
func (s *Service) Open(ctx context.Context, id string) (asset.Asset, io.ReadCloser, error) {
	a, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return asset.Asset{}, nil, err
	}
	rc, err := s.files.Read(ctx, a.Source)
	if err != nil {
		return asset.Asset{}, nil, err
	}
	return a, rc, nil
}

// URL resolves the serving path for an asset.
func (s *Service) URL(a asset.Asset) string {
	return s.files.URL(a.Source)
}

// Delete removes the metadata record and the stored file.
func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAsset(ctx, id); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, a.Source); err != nil && !errors.Is(err, assetstorage.ErrNotFound) {
		s.log.WithError(err).WithField("asset_id", id).Warn("delete asset file failed")
	}
	if s.bus != nil {
		s.bus.Publish(events.New(events.AssetDeleted, "asset", id, nil))
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
