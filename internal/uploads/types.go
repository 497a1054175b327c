// Package uploads implements the chunked/resumable upload engine: session
// lifecycle, per-session concurrency control, capacity bounds, commit
// orchestration, and time-based expiration. Chunk payloads themselves live in
// a partstore.Store; this package owns the rules around them.
package uploads

import (
	"sync"
	"time"

	"github.com/MasumNishat/signing-sub001/internal/partstore"
	"github.com/google/uuid"
)

// Hard bounds on initiation options. Values outside these ranges are
// rejected regardless of configured defaults.
const (
	MinChunkSize int64 = 1 << 20  // 1 MiB
	MaxChunkSize int64 = 25 << 20 // 25 MiB

	MinMaxChunks = 1
	MaxMaxChunks = 10000

	MinExpiration = time.Hour
	MaxExpiration = 168 * time.Hour
)

// Status is the session lifecycle state. Transitions are owned exclusively
// by the Manager; statusCommitting is an internal transient value guarding
// the commit critical section and is never reported externally.
type Status int8

const (
	StatusPending Status = iota
	StatusActive
	statusCommitting
	StatusCommitted
	StatusDeleted
	StatusExpired
)

// String returns the external name of the status. The transient committing
// state reports as active: from the outside the session is still mid-upload
// until the commit either lands or rolls back.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive, statusCommitting:
		return "active"
	case StatusCommitted:
		return "committed"
	case StatusDeleted:
		return "deleted"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// terminal reports whether no further transitions are possible.
func (s Status) terminal() bool {
	return s == StatusCommitted || s == StatusDeleted || s == StatusExpired
}

// Options are the caller-supplied initiation parameters. Zero values take
// the manager's configured defaults.
type Options struct {
	ChunkSize       int64         `json:"chunk_size"`
	MaxChunks       int           `json:"max_chunks"`
	ExpirationHours time.Duration `json:"expiration"`
}

// Session is one resumable upload attempt. All fields are guarded by mu;
// the Manager serializes every mutating operation per session through it.
type Session struct {
	mu sync.Mutex

	ID          uuid.UUID
	Owner       string
	ChunkSize   int64
	MaxChunks   int
	Status      Status
	Parts       map[int]partstore.PartInfo
	TotalBytes  int64
	CreatedAt   time.Time
	ExpiresAt   time.Time
	CommittedAt *time.Time
}

// AssembledObject is the result of a successful commit: the concatenated
// byte stream, its aggregate checksum, and its size. Ownership transfers to
// the caller; the engine retains no reference to it.
type AssembledObject struct {
	Bytes    []byte
	Checksum string
	Size     int64
}
