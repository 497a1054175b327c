package uploads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MasumNishat/signing-sub001/internal/integrity"
	"github.com/MasumNishat/signing-sub001/internal/partstore"
	"github.com/MasumNishat/signing-sub001/pkg/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Manager owns upload session lifecycle: initiation, part sequencing,
// capacity enforcement, commit orchestration, and deletion. Mutations on a
// single session are serialized through the session's own mutex; unrelated
// sessions proceed fully in parallel.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	parts    partstore.Store
	defaults config.UploadConfig

	// now is swappable so tests can advance the clock past deadlines.
	now func() time.Time
}

// NewManager creates a session manager over the given part store.
func NewManager(parts partstore.Store, defaults config.UploadConfig) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		parts:    parts,
		defaults: defaults,
		now:      time.Now,
	}
}

// resolveOptions applies configured defaults and validates the hard bounds.
func (m *Manager) resolveOptions(opts Options) (Options, *Error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = m.defaults.DefaultChunkSize
	}
	if opts.MaxChunks == 0 {
		opts.MaxChunks = m.defaults.DefaultMaxChunks
	}
	if opts.ExpirationHours == 0 {
		opts.ExpirationHours = m.defaults.DefaultExpiration
	}

	if opts.ChunkSize < MinChunkSize || opts.ChunkSize > MaxChunkSize {
		return opts, validationErrorf("chunk_size %d out of range [%d, %d]", opts.ChunkSize, MinChunkSize, MaxChunkSize)
	}
	if opts.MaxChunks < MinMaxChunks || opts.MaxChunks > MaxMaxChunks {
		return opts, validationErrorf("max_chunks %d out of range [%d, %d]", opts.MaxChunks, MinMaxChunks, MaxMaxChunks)
	}
	if opts.ExpirationHours < MinExpiration || opts.ExpirationHours > MaxExpiration {
		return opts, validationErrorf("expiration %s out of range [%s, %s]", opts.ExpirationHours, MinExpiration, MaxExpiration)
	}

	return opts, nil
}

// Initiate allocates a new session for the owner, stores the supplied payload
// as part 0, and returns the session's metadata snapshot.
func (m *Manager) Initiate(ctx context.Context, owner string, firstChunk []byte, opts Options) (*Snapshot, error) {
	opts, verr := m.resolveOptions(opts)
	if verr != nil {
		return nil, verr
	}

	if int64(len(firstChunk)) > opts.ChunkSize {
		return nil, capacityErrorf("first chunk is %d bytes, declared chunk_size is %d", len(firstChunk), opts.ChunkSize)
	}

	id := uuid.New()
	now := m.now()

	info, err := m.parts.Put(ctx, id.String(), 0, firstChunk)
	if err != nil {
		return nil, storageError("failed to store first chunk", err)
	}

	session := &Session{
		ID:         id,
		Owner:      owner,
		ChunkSize:  opts.ChunkSize,
		MaxChunks:  opts.MaxChunks,
		Status:     StatusActive,
		Parts:      map[int]partstore.PartInfo{0: info},
		TotalBytes: info.Size,
		CreatedAt:  now,
		ExpiresAt:  now.Add(opts.ExpirationHours),
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	log.Info().
		Str("session_id", id.String()).
		Str("owner", owner).
		Int64("chunk_size", opts.ChunkSize).
		Int("max_chunks", opts.MaxChunks).
		Time("expires_at", session.ExpiresAt).
		Msg("upload session initiated")

	session.mu.Lock()
	defer session.mu.Unlock()
	return snapshotLocked(session), nil
}

// lookup resolves a session scoped to its owner. A session owned by someone
// else is indistinguishable from a missing one.
func (m *Manager) lookup(owner string, id uuid.UUID) (*Session, *Error) {
	m.mu.RLock()
	session, exists := m.sessions[id]
	m.mu.RUnlock()

	if !exists || session.Owner != owner {
		return nil, notFoundError(id.String())
	}
	return session, nil
}

// checkWritableLocked validates that a session can still accept mutations.
// Caller holds the session mutex.
func (m *Manager) checkWritableLocked(s *Session) *Error {
	switch s.Status {
	case StatusCommitted:
		return conflictErrorf("session %s is already committed", s.ID)
	case statusCommitting:
		return conflictErrorf("session %s has a commit in progress", s.ID)
	case StatusDeleted:
		return conflictErrorf("session %s is deleted", s.ID)
	case StatusExpired:
		return expiredErrorf("session %s is expired", s.ID)
	}

	if !m.now().Before(s.ExpiresAt) {
		return expiredErrorf("session %s passed its deadline at %s", s.ID, s.ExpiresAt.UTC().Format(time.RFC3339))
	}

	return nil
}

// AddChunk stores or overwrites the part at the given sequence. Overwrites
// are whole-part, last-write-wins; the session's byte total is recomputed
// accordingly. Expiration is absolute from creation and is not reset.
func (m *Manager) AddChunk(ctx context.Context, owner string, id uuid.UUID, sequence int, payload []byte) (*Snapshot, error) {
	session, lerr := m.lookup(owner, id)
	if lerr != nil {
		return nil, lerr
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if err := m.checkWritableLocked(session); err != nil {
		return nil, err
	}

	if sequence < 0 || sequence >= session.MaxChunks {
		return nil, capacityErrorf("sequence %d out of range [0, %d)", sequence, session.MaxChunks)
	}
	if int64(len(payload)) > session.ChunkSize {
		return nil, capacityErrorf("part is %d bytes, chunk_size is %d", len(payload), session.ChunkSize)
	}

	projected := session.TotalBytes + int64(len(payload))
	if prev, overwrite := session.Parts[sequence]; overwrite {
		projected -= prev.Size
	}
	if limit := session.ChunkSize * int64(session.MaxChunks); projected > limit {
		return nil, capacityErrorf("session would hold %d bytes, limit is %d", projected, limit)
	}

	info, err := m.parts.Put(ctx, id.String(), sequence, payload)
	if err != nil {
		return nil, storageError("failed to store part", err)
	}

	if prev, overwrite := session.Parts[sequence]; overwrite {
		session.TotalBytes -= prev.Size
	}
	session.Parts[sequence] = info
	session.TotalBytes += info.Size

	log.Debug().
		Str("session_id", id.String()).
		Int("sequence", sequence).
		Int64("part_size", info.Size).
		Int64("total_bytes", session.TotalBytes).
		Msg("part stored")

	return snapshotLocked(session), nil
}

// Commit verifies completeness and integrity, assembles the final object, and
// marks the session committed. The status flip to an internal committing state
// happens under the session lock; the potentially slow assembly runs outside
// it; the final flip to committed (or rollback to active) takes the lock
// again. At most one commit per session ever succeeds.
func (m *Manager) Commit(ctx context.Context, owner string, id uuid.UUID) (*AssembledObject, *Snapshot, error) {
	session, lerr := m.lookup(owner, id)
	if lerr != nil {
		return nil, nil, lerr
	}

	session.mu.Lock()
	if err := m.checkWritableLocked(session); err != nil {
		session.mu.Unlock()
		return nil, nil, err
	}

	if len(session.Parts) == 0 {
		session.mu.Unlock()
		return nil, nil, &Error{Kind: KindEmptyUpload, Message: "no parts uploaded"}
	}

	descriptors, missing := contiguousParts(session.Parts)
	if len(missing) > 0 {
		session.mu.Unlock()
		return nil, nil, &Error{
			Kind:    KindIntegrity,
			Message: "upload has sequence gaps",
			Missing: missing,
		}
	}

	// Every part but the last must be exactly one chunk.
	for _, desc := range descriptors[:len(descriptors)-1] {
		if desc.Size != session.ChunkSize {
			session.mu.Unlock()
			return nil, nil, integrityErrorf("part %d is %d bytes, expected exactly %d", desc.Sequence, desc.Size, session.ChunkSize)
		}
	}

	session.Status = statusCommitting
	chunkTotal := session.TotalBytes
	session.mu.Unlock()

	assembled, aerr := m.assemble(ctx, id.String(), descriptors, chunkTotal)
	if aerr != nil {
		m.rollbackCommit(session)
		return nil, nil, aerr
	}

	session.mu.Lock()
	if session.Status != statusCommitting {
		// A concurrent delete won the race during assembly; leave its
		// terminal state alone.
		status := session.Status
		session.mu.Unlock()
		return nil, nil, conflictErrorf("session %s became %s during commit", id, status)
	}

	committedAt := m.now()
	session.Status = StatusCommitted
	session.CommittedAt = &committedAt
	session.Parts = make(map[int]partstore.PartInfo)
	snapshot := snapshotLocked(session)
	session.mu.Unlock()

	// Parts are superseded by the assembled object; release their storage.
	// The commit itself already happened, so a cleanup failure is only logged.
	if err := m.parts.DeleteSession(ctx, id.String()); err != nil {
		log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to release part storage after commit")
	}

	log.Info().
		Str("session_id", id.String()).
		Str("owner", owner).
		Int64("size", assembled.Size).
		Str("checksum", assembled.Checksum).
		Msg("upload committed")

	return assembled, snapshot, nil
}

// rollbackCommit returns a session to active after a failed assembly, unless
// a concurrent terminal transition happened in the meantime.
func (m *Manager) rollbackCommit(session *Session) {
	session.mu.Lock()
	if session.Status == statusCommitting {
		session.Status = StatusActive
	}
	session.mu.Unlock()
}

// assemble reads the parts in sequence order, re-checks each recorded
// checksum against the stored bytes, and concatenates them while computing
// the aggregate digest.
func (m *Manager) assemble(ctx context.Context, sessionID string, descriptors []partstore.PartInfo, totalBytes int64) (*AssembledObject, *Error) {
	buf := make([]byte, 0, totalBytes)
	agg := integrity.NewAggregator()

	for _, desc := range descriptors {
		payload, err := m.parts.Get(ctx, sessionID, desc.Sequence)
		if err != nil {
			return nil, storageError("failed to read part during assembly", err)
		}
		if int64(len(payload)) != desc.Size {
			return nil, integrityErrorf("part %d is %d bytes on disk, recorded %d", desc.Sequence, len(payload), desc.Size)
		}
		if !integrity.Verify(desc.Checksum, integrity.Digest(payload)) {
			return nil, integrityErrorf("part %d checksum mismatch", desc.Sequence)
		}

		agg.Write(payload)
		buf = append(buf, payload...)
	}

	return &AssembledObject{
		Bytes:    buf,
		Checksum: agg.Sum(),
		Size:     agg.Size(),
	}, nil
}

// contiguousParts orders the received parts by sequence and reports any gaps
// in [0, highest]. Caller holds the session mutex.
func contiguousParts(parts map[int]partstore.PartInfo) ([]partstore.PartInfo, []int) {
	highest := -1
	for seq := range parts {
		if seq > highest {
			highest = seq
		}
	}

	descriptors := make([]partstore.PartInfo, 0, highest+1)
	var missing []int
	for seq := 0; seq <= highest; seq++ {
		desc, ok := parts[seq]
		if !ok {
			missing = append(missing, seq)
			continue
		}
		descriptors = append(descriptors, desc)
	}

	return descriptors, missing
}

// Delete discards all stored parts and marks the session deleted regardless
// of prior status. Deleting an already-deleted session is a no-op success.
// Deleting a committed session only removes the engine's bookkeeping; the
// adopted object belongs to the document store.
func (m *Manager) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	session, lerr := m.lookup(owner, id)
	if lerr != nil {
		return lerr
	}

	session.mu.Lock()
	if session.Status == StatusDeleted {
		session.mu.Unlock()
		return nil
	}
	session.Status = StatusDeleted
	session.Parts = make(map[int]partstore.PartInfo)
	session.TotalBytes = 0
	session.mu.Unlock()

	if err := m.parts.DeleteSession(ctx, id.String()); err != nil {
		log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to release part storage on delete")
	}

	log.Info().Str("session_id", id.String()).Str("owner", owner).Msg("upload session deleted")
	return nil
}

// GetMetadata returns a consistent snapshot of the session. It never mutates
// state.
func (m *Manager) GetMetadata(ctx context.Context, owner string, id uuid.UUID) (*Snapshot, error) {
	session, lerr := m.lookup(owner, id)
	if lerr != nil {
		return nil, lerr
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	return snapshotLocked(session), nil
}

// expireStale transitions every active session past its deadline to expired
// and releases its part storage. Called by the reaper; safe to race against
// commits because both sides transition under the session mutex and only
// ever move an active session.
func (m *Manager) expireStale(ctx context.Context, now time.Time) int {
	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		candidates = append(candidates, session)
	}
	m.mu.RUnlock()

	expired := 0
	for _, session := range candidates {
		session.mu.Lock()
		reapable := (session.Status == StatusActive || session.Status == StatusPending) &&
			!session.ExpiresAt.After(now)
		if reapable {
			session.Status = StatusExpired
			session.Parts = make(map[int]partstore.PartInfo)
			session.TotalBytes = 0
		}
		session.mu.Unlock()

		if !reapable {
			continue
		}

		if err := m.parts.DeleteSession(ctx, session.ID.String()); err != nil {
			log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("failed to release part storage on expiry")
		}
		expired++

		log.Info().
			Str("session_id", session.ID.String()).
			Time("expired_at", session.ExpiresAt).
			Msg("upload session expired")
	}

	return expired
}

// sortedSequences returns the received sequence numbers in ascending order.
// Caller holds the session mutex.
func sortedSequences(parts map[int]partstore.PartInfo) []int {
	sequences := make([]int, 0, len(parts))
	for seq := range parts {
		sequences = append(sequences, seq)
	}
	sort.Ints(sequences)
	return sequences
}
