package partstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/MasumNishat/signing-sub001/internal/storage"
	"github.com/rs/zerolog/log"
)

// maxPutAttempts bounds retries of transient write failures. Retrying happens
// only here, at the storage boundary; callers see a single final error.
const maxPutAttempts = 3

// BlobStore implements Store on top of a BlobStorage backend. Parts live
// under uploads/<session>/<sequence>.part; atomicity per key comes from the
// backend's temp-file-and-rename write discipline.
type BlobStore struct {
	blobs storage.BlobStorage
}

// NewBlobStore creates a part store backed by the given blob storage.
func NewBlobStore(blobs storage.BlobStorage) *BlobStore {
	return &BlobStore{blobs: blobs}
}

func partPath(sessionID string, sequence int) string {
	return fmt.Sprintf("uploads/%s/%05d.part", sessionID, sequence)
}

func sessionPrefix(sessionID string) string {
	return fmt.Sprintf("uploads/%s", sessionID)
}

// Put creates or overwrites the part at (sessionID, sequence)
func (s *BlobStore) Put(ctx context.Context, sessionID string, sequence int, payload []byte) (PartInfo, error) {
	path := partPath(sessionID, sequence)

	var lastErr error
	for attempt := 1; attempt <= maxPutAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return PartInfo{}, err
		}

		result, err := s.blobs.Store(ctx, path, bytes.NewReader(payload), "application/octet-stream")
		if err == nil {
			return PartInfo{
				Sequence: sequence,
				Size:     result.BytesWritten,
				Checksum: result.SHA256,
				StoredAt: time.Now().UTC(),
			}, nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Int("sequence", sequence).
			Int("attempt", attempt).
			Msg("part write failed")
	}

	return PartInfo{}, fmt.Errorf("part write failed after %d attempts: %w", maxPutAttempts, lastErr)
}

// Get returns the full payload of a stored part
func (s *BlobStore) Get(ctx context.Context, sessionID string, sequence int) ([]byte, error) {
	reader, err := s.blobs.Retrieve(ctx, partPath(sessionID, sequence))
	if err != nil {
		return nil, fmt.Errorf("part read failed: %w", err)
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("part read failed: %w", err)
	}

	return payload, nil
}

// Size returns a stored part's size without reading its payload
func (s *BlobStore) Size(ctx context.Context, sessionID string, sequence int) (int64, error) {
	return s.blobs.GetSize(ctx, partPath(sessionID, sequence))
}

// Exists checks whether a part is present
func (s *BlobStore) Exists(ctx context.Context, sessionID string, sequence int) (bool, error) {
	return s.blobs.Exists(ctx, partPath(sessionID, sequence))
}

// DeleteSession removes every part belonging to the session
func (s *BlobStore) DeleteSession(ctx context.Context, sessionID string) error {
	prefix := sessionPrefix(sessionID)

	paths, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to list session parts: %w", err)
	}

	for _, path := range paths {
		if err := s.blobs.Delete(ctx, path); err != nil {
			return fmt.Errorf("failed to delete part %s: %w", path, err)
		}
	}

	log.Debug().
		Str("session_id", sessionID).
		Int("parts_deleted", len(paths)).
		Msg("released session part storage")

	return nil
}
