// Package docstore is the document store that adopts assembled objects from
// committed uploads. The upload engine's responsibility ends at commit;
// everything after the handoff lives here.
package docstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/MasumNishat/signing-sub001/internal/common"
	"github.com/MasumNishat/signing-sub001/internal/integrity"
	"github.com/MasumNishat/signing-sub001/internal/storage"
	"github.com/MasumNishat/signing-sub001/internal/uploads"
	"github.com/MasumNishat/signing-sub001/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const documentCacheTTL = 10 * time.Minute

// Store persists adopted documents: bytes in blob storage, metadata in the
// database, with a read-through cache for lookups.
type Store struct {
	db      *common.Database
	storage storage.BlobStorage
	cache   *common.Cache
}

// NewStore creates a document store. The cache may be nil.
func NewStore(db *common.Database, blobs storage.BlobStorage, cache *common.Cache) *Store {
	return &Store{
		db:      db,
		storage: blobs,
		cache:   cache,
	}
}

// Adopt takes ownership of an assembled object, stores its bytes, and
// records the document. The blob write's own checksum is cross-checked
// against the engine's aggregate checksum before the record is created.
func (s *Store) Adopt(ctx context.Context, owner, name, contentType string, assembled *uploads.AssembledObject) (*types.Document, error) {
	doc := &types.Document{
		ID:          uuid.New(),
		OwnerID:     owner,
		Name:        name,
		ContentType: contentType,
		Size:        assembled.Size,
		SHA256:      assembled.Checksum,
	}
	doc.StoragePath = fmt.Sprintf("documents/%s/%s", owner, doc.ID)

	result, err := s.storage.Store(ctx, doc.StoragePath, bytes.NewReader(assembled.Bytes), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	if !integrity.Verify(assembled.Checksum, result.SHA256) {
		// The write landed corrupted; remove it rather than record a
		// document whose bytes disagree with its checksum.
		if derr := s.storage.Delete(ctx, doc.StoragePath); derr != nil {
			log.Warn().Err(derr).Str("path", doc.StoragePath).Msg("failed to remove corrupted document blob")
		}
		return nil, fmt.Errorf("document checksum mismatch: expected %s, stored %s", assembled.Checksum, result.SHA256)
	}

	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		if derr := s.storage.Delete(ctx, doc.StoragePath); derr != nil {
			log.Warn().Err(derr).Str("path", doc.StoragePath).Msg("failed to remove orphaned document blob")
		}
		return nil, fmt.Errorf("failed to record document: %w", err)
	}

	s.cacheSet(ctx, doc)

	log.Info().
		Str("document_id", doc.ID.String()).
		Str("owner", owner).
		Str("name", name).
		Int64("size", doc.Size).
		Msg("document adopted")

	return doc, nil
}

// Get returns a document's metadata, serving repeat reads from cache.
func (s *Store) Get(ctx context.Context, owner string, id uuid.UUID) (*types.Document, error) {
	cacheKey := documentCacheKey(id)

	if s.cache != nil {
		var cached types.Document
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil && cached.OwnerID == owner {
			return &cached, nil
		}
	}

	var doc types.Document
	if err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, owner).First(&doc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("document %s not found", id)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	s.cacheSet(ctx, &doc)
	return &doc, nil
}

// Open returns the document's content stream.
func (s *Store) Open(ctx context.Context, owner string, id uuid.UUID) (*types.Document, []byte, error) {
	doc, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, nil, err
	}

	reader, err := s.storage.Retrieve(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open document content: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, nil, fmt.Errorf("failed to read document content: %w", err)
	}

	return doc, buf.Bytes(), nil
}

func (s *Store) cacheSet(ctx context.Context, doc *types.Document) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, documentCacheKey(doc.ID), doc, documentCacheTTL); err != nil {
		log.Debug().Err(err).Str("document_id", doc.ID.String()).Msg("failed to cache document")
	}
}

func documentCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("document:%s", id)
}
