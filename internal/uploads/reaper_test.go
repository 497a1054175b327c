package uploads

import (
	"context"
	"testing"
	"time"

	"github.com/MasumNishat/signing-sub001/internal/partstore"
	"github.com/MasumNishat/signing-sub001/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaperSweepExpiresStaleSessions(t *testing.T) {
	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	parts := partstore.NewBlobStore(blobs)
	m := NewManager(parts, testDefaults())
	reaper := NewReaper(m, time.Minute)

	ctx := context.Background()
	snapshot, err := m.Initiate(ctx, testOwner, chunk('a', MinChunkSize), Options{ExpirationHours: time.Hour})
	require.NoError(t, err)
	id := uuid.MustParse(snapshot.SessionID)

	// Nothing is stale yet.
	assert.Zero(t, reaper.Sweep(ctx))

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 1, reaper.Sweep(ctx))

	meta, err := m.GetMetadata(ctx, testOwner, id)
	require.NoError(t, err)
	assert.Equal(t, "expired", meta.Status)
	assert.Zero(t, meta.PartCount)
	assert.Zero(t, meta.TotalBytes)

	exists, err := parts.Exists(ctx, id.String(), 0)
	require.NoError(t, err)
	assert.False(t, exists)

	// Expiration is terminal.
	_, _, err = m.Commit(ctx, testOwner, id)
	assert.True(t, IsKind(err, KindExpired))

	// A second sweep finds nothing left to do.
	assert.Zero(t, reaper.Sweep(ctx))
}

func TestReaperSkipsCommittedSessions(t *testing.T) {
	m := newTestManager(t)
	reaper := NewReaper(m, time.Minute)

	ctx := context.Background()
	snapshot, err := m.Initiate(ctx, testOwner, chunk('a', MinChunkSize), Options{ExpirationHours: time.Hour})
	require.NoError(t, err)
	id := uuid.MustParse(snapshot.SessionID)

	_, _, err = m.Commit(ctx, testOwner, id)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Zero(t, reaper.Sweep(ctx))

	meta, err := m.GetMetadata(ctx, testOwner, id)
	require.NoError(t, err)
	assert.Equal(t, "committed", meta.Status)
}

func TestReaperStartSweepsOnInterval(t *testing.T) {
	m := newTestManager(t)
	reaper := NewReaper(m, 10*time.Millisecond)

	ctx := context.Background()
	snapshot, err := m.Initiate(ctx, testOwner, chunk('a', MinChunkSize), Options{ExpirationHours: time.Hour})
	require.NoError(t, err)
	id := uuid.MustParse(snapshot.SessionID)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	reaper.Start(runCtx)

	require.Eventually(t, func() bool {
		meta, err := m.GetMetadata(ctx, testOwner, id)
		return err == nil && meta.Status == "expired"
	}, time.Second, 10*time.Millisecond)
}
