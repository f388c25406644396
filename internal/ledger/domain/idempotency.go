package domain

import (
	"github.com/google/uuid"
)

// idempotencyNamespace scopes the UUIDv5 keys generated for ledger movements.
var idempotencyNamespace = uuid.MustParse("6f1c3c9e-7d1a-5b8e-9c52-2f0d8a4b1e77")

// IdempotencyKey derives the deterministic key for a bounty movement of the given kind.
// The same (bountyID, kind) pair always yields the same key, which is what makes gateway
// retries and webhook replays safe.
func IdempotencyKey(bountyID string, kind Kind) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(bountyID+":"+string(kind))).String()
}
