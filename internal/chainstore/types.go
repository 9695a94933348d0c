// Package chainstore is the append-only relational store (C1): a single
// Postgres-backed chain of blocks plus the creator registry and audit log,
// grounded in the teacher's storage layer conventions (database/sql driver
// registration + an explicit schema string run on startup, as in
// internal-storage-storage.go.go from the retrieval pack) and adapted to
// lib/pq/Postgres per spec §4.1.
package chainstore

import "time"

// Creator is a registered entity permitted to submit blocks (spec §3).
type Creator struct {
	ID          string
	DisplayName string
	PublicKey   []byte // PEM-encoded RSA public key
	Active      bool
	CreatedAt   time.Time
}

// Block is one row of the append-only chain (spec §3). Hex fields are stored
// as lowercase hex strings; EncryptedData/DataIV/EncryptedDataKey are stored
// as bytea and surfaced here as raw bytes. BlockID is the synthetic primary
// key (bigserial); BlockNumber is the spec's monotone, gap-free sequence
// number starting at 1.
type Block struct {
	BlockID          int64
	BlockNumber      int64
	PreviousHash     *string // NULL only when BlockNumber == 1
	BlockHash        string
	EncryptedData    []byte
	DataIV           []byte
	EncryptedDataKey []byte
	Nonce            uint64
	Difficulty       int
	CreatorID        string
	Signature        []byte
	DataSize         int
	MiningDurationMs int64 // client-reported, informational only (spec §3)
	CreatedAt        time.Time
	Verified         bool
	VerifiedAt       *time.Time
}

// AuditEvent is one row of audit.events (spec §6): id, occurred_at, block_id,
// kind, reason. Kind is one of BLOCK_COMMITTED, BLOCK_REJECTED,
// BLOCK_VERIFIED_OK, BLOCK_VERIFIED_FAIL, CHAIN_REPLACED.
type AuditEvent struct {
	ID        int64
	OccurredAt time.Time
	BlockID   int64
	Kind      string
	Reason    string
}

const (
	AuditBlockCommitted = "BLOCK_COMMITTED"
	AuditBlockRejected  = "BLOCK_REJECTED"
	AuditVerifyPassed   = "BLOCK_VERIFIED_OK"
	AuditVerifyFailed   = "BLOCK_VERIFIED_FAIL"
	AuditChainReplaced  = "CHAIN_REPLACED"
)

// AppendOutcome distinguishes the three results Append can produce (spec §4.2).
type AppendOutcome int

const (
	AppendInserted AppendOutcome = iota
	AppendDuplicate
	AppendRejected
)

// ReplaceOutcome distinguishes the two results ReplaceChain can produce
// (spec §4.4's longest-chain rule).
type ReplaceOutcome int

const (
	ReplaceAccepted ReplaceOutcome = iota
	ReplaceRejected
)
