package uploads

import (
	"time"
)

// Snapshot is the read-only projection of a session handed to external
// callers. It is built under the session mutex and shares no memory with the
// live session afterwards.
type Snapshot struct {
	SessionID         string     `json:"session_id"`
	Owner             string     `json:"owner"`
	Status            string     `json:"status"`
	ChunkSize         int64      `json:"chunk_size"`
	MaxChunks         int        `json:"max_chunks"`
	ReceivedSequences []int      `json:"received_sequences"`
	PartCount         int        `json:"part_count"`
	TotalBytes        int64      `json:"total_bytes"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	CommittedAt       *time.Time `json:"committed_at,omitempty"`
}

// snapshotLocked projects the session's current state. Caller holds the
// session mutex.
func snapshotLocked(s *Session) *Snapshot {
	snap := &Snapshot{
		SessionID:         s.ID.String(),
		Owner:             s.Owner,
		Status:            s.Status.String(),
		ChunkSize:         s.ChunkSize,
		MaxChunks:         s.MaxChunks,
		ReceivedSequences: sortedSequences(s.Parts),
		PartCount:         len(s.Parts),
		TotalBytes:        s.TotalBytes,
		CreatedAt:         s.CreatedAt,
		ExpiresAt:         s.ExpiresAt,
	}

	if s.CommittedAt != nil {
		committedAt := *s.CommittedAt
		snap.CommittedAt = &committedAt
	}

	return snap
}
