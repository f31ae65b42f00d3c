// Package store persists forge run records to SQLite (local/offline
// archive), PostgreSQL (durable multi-writer state), and ClickHouse
// (analytics at volume) -- the same three-backend split the teacher uses
// for ACARS messages, repurposed to the one entity this domain produces.
//
// Grounded on internal/storage/{db,sqlite,postgres,clickhouse}.go.
package store

import (
	"crypto/sha256"
	"time"
)

// CRCParams is the flat, storable form of a crcparam.Params: a run record
// shouldn't hold live *bigint.Bigint pointers, just their hex rendering.
type CRCParams struct {
	Width      uint
	Poly       string
	Init       string
	XorOut     string
	ReflectIn  bool
	ReflectOut bool
}

// ForgeRun is one forge (or plain-CRC) request and its outcome, as recorded
// by internal/api and internal/forgequeue for history/audit queries.
//
// MessageDigest holds the SHA-256 of the input message rather than the
// message itself -- a forge service may be handed arbitrary payloads, and
// there's no reason to retain them at rest once the run is recorded.
type ForgeRun struct {
	ID              int64
	RequestedAt     time.Time
	Params          CRCParams
	MessageDigest   [sha256.Size]byte
	MessageLength   uint // bits
	MutableBitCount int
	TargetChecksum  string // hex, empty for a plain-CRC request
	Success         bool
	FlipCount       int
	ForgeReturnCode int // mirrors spec.md §6.4's exit codes: 0, 5, or 6
	DurationMicros  int64
}

// Digest computes the SHA-256 digest of a message for MessageDigest.
func Digest(msg []byte) [sha256.Size]byte {
	return sha256.Sum256(msg)
}
