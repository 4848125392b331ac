package freeze

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists threat records and frozen calls.
// Threat records are append-mostly: only the mitigation fields ever change.
type Store interface {
	CreateThreat(ctx context.Context, rec *ThreatRecord) error
	GetThreat(ctx context.Context, id common.Hash) (*ThreatRecord, error)
	UpdateThreat(ctx context.Context, rec *ThreatRecord) error
	ListThreats(ctx context.Context, limit int) ([]*ThreatRecord, error)

	CreateFrozenCall(ctx context.Context, fc *FrozenCall) error
	GetFrozenCall(ctx context.Context, id common.Hash) (*FrozenCall, error)
	UpdateFrozenCall(ctx context.Context, fc *FrozenCall) error
	// ListActiveFrozen returns unresolved frozen calls, oldest first.
	// Expired-but-unresolved calls are included; expiry is derived state.
	ListActiveFrozen(ctx context.Context, limit int) ([]*FrozenCall, error)
}
