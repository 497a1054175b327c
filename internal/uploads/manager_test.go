package uploads

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/MasumNishat/signing-sub001/internal/partstore"
	"github.com/MasumNishat/signing-sub001/internal/storage"
	"github.com/MasumNishat/signing-sub001/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "owner-1"

func testDefaults() config.UploadConfig {
	return config.UploadConfig{
		DefaultChunkSize:  MinChunkSize,
		DefaultMaxChunks:  4,
		DefaultExpiration: 2 * time.Hour,
		ReaperInterval:    time.Minute,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	return NewManager(partstore.NewBlobStore(blobs), testDefaults())
}

// chunk builds a payload of n bytes filled with b.
func chunk(b byte, n int64) []byte {
	return bytes.Repeat([]byte{b}, int(n))
}

func mustInitiate(t *testing.T, m *Manager, first []byte, opts Options) uuid.UUID {
	t.Helper()

	snapshot, err := m.Initiate(context.Background(), testOwner, first, opts)
	require.NoError(t, err)

	id, err := uuid.Parse(snapshot.SessionID)
	require.NoError(t, err)
	return id
}

func TestInitiateValidatesOptions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name string
		opts Options
		kind Kind
	}{
		{
			name: "chunk size below minimum",
			opts: Options{ChunkSize: MinChunkSize - 1},
			kind: KindValidation,
		},
		{
			name: "chunk size above maximum",
			opts: Options{ChunkSize: MaxChunkSize + 1},
			kind: KindValidation,
		},
		{
			name: "too many chunks",
			opts: Options{MaxChunks: MaxMaxChunks + 1},
			kind: KindValidation,
		},
		{
			name: "negative max chunks",
			opts: Options{MaxChunks: -3},
			kind: KindValidation,
		},
		{
			name: "expiration too long",
			opts: Options{ExpirationHours: MaxExpiration + time.Hour},
			kind: KindValidation,
		},
		{
			name: "expiration too short",
			opts: Options{ExpirationHours: time.Minute},
			kind: KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Initiate(ctx, testOwner, chunk('a', 16), tt.opts)
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestInitiateAppliesDefaults(t *testing.T) {
	m := newTestManager(t)

	snapshot, err := m.Initiate(context.Background(), testOwner, chunk('a', MinChunkSize), Options{})
	require.NoError(t, err)

	assert.Equal(t, "active", snapshot.Status)
	assert.Equal(t, MinChunkSize, snapshot.ChunkSize)
	assert.Equal(t, 4, snapshot.MaxChunks)
	assert.Equal(t, []int{0}, snapshot.ReceivedSequences)
	assert.Equal(t, MinChunkSize, snapshot.TotalBytes)
	assert.Equal(t, snapshot.CreatedAt.Add(2*time.Hour), snapshot.ExpiresAt)
	assert.Nil(t, snapshot.CommittedAt)
}

func TestInitiateRejectsOversizedFirstChunk(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Initiate(context.Background(), testOwner, chunk('a', MinChunkSize+1), Options{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCapacity))
}

func TestRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	p0 := chunk('a', MinChunkSize)
	p1 := chunk('b', MinChunkSize)
	p2 := chunk('c', 1234) // short final part

	id := mustInitiate(t, m, p0, Options{})

	// Upload the remaining parts out of order.
	_, err := m.AddChunk(ctx, testOwner, id, 2, p2)
	require.NoError(t, err)
	_, err = m.AddChunk(ctx, testOwner, id, 1, p1)
	require.NoError(t, err)

	assembled, snapshot, err := m.Commit(ctx, testOwner, id)
	require.NoError(t, err)

	want := append(append(append([]byte{}, p0...), p1...), p2...)
	assert.Equal(t, want, assembled.Bytes)
	assert.Equal(t, int64(len(want)), assembled.Size)

	sum := sha256.Sum256(want)
	assert.Equal(t, hex.EncodeToString(sum[:]), assembled.Checksum)

	assert.Equal(t, "committed", snapshot.Status)
	require.NotNil(t, snapshot.CommittedAt)
	assert.Zero(t, snapshot.PartCount)
}

func TestCommitReleasesPartStorage(t *testing.T) {
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	parts := partstore.NewBlobStore(blobs)
	m := NewManager(parts, testDefaults())

	ctx := context.Background()
	snapshot, err := m.Initiate(ctx, testOwner, chunk('a', MinChunkSize), Options{})
	require.NoError(t, err)
	id := uuid.MustParse(snapshot.SessionID)

	_, _, err = m.Commit(ctx, testOwner, id)
	require.NoError(t, err)

	exists, err := parts.Exists(ctx, id.String(), 0)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCommitRejectsSequenceGap(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id := mustInitiate(t, m, chunk('a', MinChunkSize), Options{})
	_, err := m.AddChunk(ctx, testOwner, id, 2, chunk('c', 16))
	require.NoError(t, err)

	_, _, err = m.Commit(ctx, testOwner, id)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindIntegrity))

	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, []int{1}, engineErr.Missing)

	// A failed commit leaves the session active and retryable.
	meta, err := m.GetMetadata(ctx, testOwner, id)
	require.NoError(t, err)
	assert.Equal(t, "active", meta.Status)
}

func TestCommitRejectsShortMiddlePart(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Part 0 is short but is not the highest sequence at commit time.
	id := mustInitiate(t, m, chunk('a', 100), Options{})
	_, err := m.AddChunk(ctx, testOwner, id, 1, chunk('b', MinChunkSize))
	require.NoError(t, err)

	_, _, err = m.Commit(ctx, testOwner, id)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindIntegrity))
}

func TestDeleteIsIdempotent(t *testing.T) {
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	parts := partstore.NewBlobStore(blobs)
	m := NewManager(parts, testDefaults())

	ctx := context.Background()
	snapshot, err := m.Initiate(ctx, testOwner, chunk('a', MinChunkSize), Options{})
	require.NoError(t, err)
	id := uuid.MustParse(snapshot.SessionID)

	require.NoError(t, m.Delete(ctx, testOwner, id))
	require.NoError(t, m.Delete(ctx, testOwner, id))

	exists, err := parts.Exists(ctx, id.String(), 0)
	require.NoError(t, err)
	assert.False(t, exists)

	// A deleted session accepts no further parts or commits.
	_, err = m.AddChunk(ctx, testOwner, id, 1, chunk('b', 16))
	assert.True(t, IsKind(err, KindConflict))
	_, _, err = m.Commit(ctx, testOwner, id)
	assert.True(t, IsKind(err, KindConflict))
}

func TestCommitExclusivity(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id := mustInitiate(t, m, chunk('a', MinChunkSize), Options{})

	const attempts = 2
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = m.Commit(ctx, testOwner, id)
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case IsKind(err, KindConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestPostCommitImmutability(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id := mustInitiate(t, m, chunk('a', MinChunkSize), Options{})
	_, _, err := m.Commit(ctx, testOwner, id)
	require.NoError(t, err)

	_, err = m.AddChunk(ctx, testOwner, id, 1, chunk('b', 16))
	assert.True(t, IsKind(err, KindConflict))

	_, _, err = m.Commit(ctx, testOwner, id)
	assert.True(t, IsKind(err, KindConflict))
}

func TestExpiredSessionRejectsOperations(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id := mustInitiate(t, m, chunk('a', MinChunkSize), Options{ExpirationHours: time.Hour})

	// Advance the clock past the deadline.
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := m.AddChunk(ctx, testOwner, id, 1, chunk('b', 16))
	assert.True(t, IsKind(err, KindExpired))

	_, _, err = m.Commit(ctx, testOwner, id)
	assert.True(t, IsKind(err, KindExpired))
}

func TestCapacityBound(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	full := chunk('a', MinChunkSize)
	id := mustInitiate(t, m, full, Options{MaxChunks: 2})

	_, err := m.AddChunk(ctx, testOwner, id, 1, full)
	require.NoError(t, err)

	// A third full part exceeds the declared bounds.
	_, err = m.AddChunk(ctx, testOwner, id, 2, full)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCapacity))

	assembled, _, err := m.Commit(ctx, testOwner, id)
	require.NoError(t, err)
	assert.Equal(t, 2*MinChunkSize, assembled.Size)
}

func TestOverwriteUsesLatestPayload(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first := chunk('a', MinChunkSize)
	second := chunk('z', MinChunkSize)

	id := mustInitiate(t, m, first, Options{MaxChunks: 1})

	snapshot, err := m.AddChunk(ctx, testOwner, id, 0, second)
	require.NoError(t, err)
	assert.Equal(t, MinChunkSize, snapshot.TotalBytes)
	assert.Equal(t, 1, snapshot.PartCount)

	assembled, _, err := m.Commit(ctx, testOwner, id)
	require.NoError(t, err)
	assert.Equal(t, second, assembled.Bytes)
}

func TestOperationsAreOwnerScoped(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id := mustInitiate(t, m, chunk('a', MinChunkSize), Options{})

	_, err := m.GetMetadata(ctx, "someone-else", id)
	assert.True(t, IsKind(err, KindNotFound))

	_, err = m.AddChunk(ctx, "someone-else", id, 1, chunk('b', 16))
	assert.True(t, IsKind(err, KindNotFound))

	_, _, err = m.Commit(ctx, "someone-else", id)
	assert.True(t, IsKind(err, KindNotFound))

	err = m.Delete(ctx, "someone-else", id)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.GetMetadata(ctx, testOwner, uuid.New())
	assert.True(t, IsKind(err, KindNotFound))
}

func TestGetMetadataReportsSortedSequences(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id := mustInitiate(t, m, chunk('a', MinChunkSize), Options{})
	_, err := m.AddChunk(ctx, testOwner, id, 3, chunk('d', 16))
	require.NoError(t, err)
	_, err = m.AddChunk(ctx, testOwner, id, 1, chunk('b', MinChunkSize))
	require.NoError(t, err)

	meta, err := m.GetMetadata(ctx, testOwner, id)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, meta.ReceivedSequences)
	assert.Equal(t, 3, meta.PartCount)
}

// failingGetStore delegates to a real part store but fails reads for one
// sequence a limited number of times, to exercise commit rollback.
type failingGetStore struct {
	partstore.Store
	failSeq   int
	failsLeft int
}

func (f *failingGetStore) Get(ctx context.Context, sessionID string, sequence int) ([]byte, error) {
	if sequence == f.failSeq && f.failsLeft > 0 {
		f.failsLeft--
		return nil, context.DeadlineExceeded
	}
	return f.Store.Get(ctx, sessionID, sequence)
}

func TestCommitRollsBackOnAssemblyFailure(t *testing.T) {
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	flaky := &failingGetStore{Store: partstore.NewBlobStore(blobs), failSeq: 1, failsLeft: 1}
	m := NewManager(flaky, testDefaults())

	ctx := context.Background()
	snapshot, err := m.Initiate(ctx, testOwner, chunk('a', MinChunkSize), Options{})
	require.NoError(t, err)
	id := uuid.MustParse(snapshot.SessionID)

	_, err = m.AddChunk(ctx, testOwner, id, 1, chunk('b', 256))
	require.NoError(t, err)

	_, _, err = m.Commit(ctx, testOwner, id)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindStorage))

	// The failed commit rolled the session back to active; a retry succeeds.
	meta, err := m.GetMetadata(ctx, testOwner, id)
	require.NoError(t, err)
	assert.Equal(t, "active", meta.Status)

	assembled, _, err := m.Commit(ctx, testOwner, id)
	require.NoError(t, err)
	assert.Equal(t, MinChunkSize+256, assembled.Size)
}
