package freeze

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cordonlabs/cordon/internal/detector"
)

// PostgresStore persists threat and freeze data in PostgreSQL.
// Addresses and hashes are stored as 0x-prefixed hex, amounts as NUMERIC.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed freeze store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (p *PostgresStore) CreateThreat(ctx context.Context, rec *ThreatRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO threat_records (
			id, caller, target, payload, value, unit, at,
			level, vuln_type, heuristic, reason,
			freeze_expiry, mitigated, mitigation_result
		) VALUES (
			$1, $2, $3, $4, $5::NUMERIC(78,0), $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14
		)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID.Hex(), rec.Caller.Hex(), rec.Target.Hex(), rec.Payload,
		bigString(rec.Value), int64(rec.Unit), rec.At,
		rec.Level.String(), string(rec.Type), rec.Heuristic, rec.Reason,
		int64(rec.FreezeExpiry), rec.Mitigated, rec.MitigationResult,
	)
	return err
}

func (p *PostgresStore) GetThreat(ctx context.Context, id common.Hash) (*ThreatRecord, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, caller, target, payload, value::TEXT, unit, at,
		       level, vuln_type, heuristic, reason,
		       freeze_expiry, mitigated, mitigation_result
		FROM threat_records WHERE id = $1`, id.Hex())

	rec, err := scanThreat(row)
	if err == sql.ErrNoRows {
		return nil, ErrThreatNotFound
	}
	return rec, err
}

func (p *PostgresStore) UpdateThreat(ctx context.Context, rec *ThreatRecord) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE threat_records SET
			level = $1, freeze_expiry = $2, mitigated = $3, mitigation_result = $4
		WHERE id = $5`,
		rec.Level.String(), int64(rec.FreezeExpiry), rec.Mitigated, rec.MitigationResult, rec.ID.Hex(),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrThreatNotFound
	}
	return nil
}

func (p *PostgresStore) ListThreats(ctx context.Context, limit int) ([]*ThreatRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, caller, target, payload, value::TEXT, unit, at,
		       level, vuln_type, heuristic, reason,
		       freeze_expiry, mitigated, mitigation_result
		FROM threat_records
		ORDER BY at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ThreatRecord
	for rows.Next() {
		rec, err := scanThreat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateFrozenCall(ctx context.Context, fc *FrozenCall) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO frozen_calls (
			threat_id, initiator, frozen_at, frozen_at_unit,
			freeze_expiry, executed, cancelled
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (threat_id) DO NOTHING`,
		fc.ThreatID.Hex(), fc.Initiator.Hex(), fc.FrozenAt, int64(fc.FrozenAtUnit),
		int64(fc.FreezeExpiry), fc.Executed, fc.Cancelled,
	)
	return err
}

func (p *PostgresStore) GetFrozenCall(ctx context.Context, id common.Hash) (*FrozenCall, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT threat_id, initiator, frozen_at, frozen_at_unit,
		       freeze_expiry, executed, cancelled
		FROM frozen_calls WHERE threat_id = $1`, id.Hex())

	fc, err := scanFrozen(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFrozen
	}
	return fc, err
}

func (p *PostgresStore) UpdateFrozenCall(ctx context.Context, fc *FrozenCall) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE frozen_calls SET executed = $1, cancelled = $2
		WHERE threat_id = $3`,
		fc.Executed, fc.Cancelled, fc.ThreatID.Hex(),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFrozen
	}
	return nil
}

func (p *PostgresStore) ListActiveFrozen(ctx context.Context, limit int) ([]*FrozenCall, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT threat_id, initiator, frozen_at, frozen_at_unit,
		       freeze_expiry, executed, cancelled
		FROM frozen_calls
		WHERE NOT executed AND NOT cancelled
		ORDER BY frozen_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FrozenCall
	for rows.Next() {
		fc, err := scanFrozen(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanThreat(s scanner) (*ThreatRecord, error) {
	var (
		rec                  ThreatRecord
		id, caller, target   string
		value, level, vtype  string
		unit, expiry         int64
	)
	err := s.Scan(
		&id, &caller, &target, &rec.Payload, &value, &unit, &rec.At,
		&level, &vtype, &rec.Heuristic, &rec.Reason,
		&expiry, &rec.Mitigated, &rec.MitigationResult,
	)
	if err != nil {
		return nil, err
	}

	rec.ID = common.HexToHash(id)
	rec.Caller = common.HexToAddress(caller)
	rec.Target = common.HexToAddress(target)
	rec.Unit = uint64(unit)
	rec.FreezeExpiry = uint64(expiry)
	rec.Level = detector.ParseLevel(level)
	rec.Type = detector.VulnType(vtype)

	rec.Value, err = parseBig(value)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanFrozen(s scanner) (*FrozenCall, error) {
	var (
		fc            FrozenCall
		id, initiator string
		atUnit, exp   int64
	)
	err := s.Scan(&id, &initiator, &fc.FrozenAt, &atUnit, &exp, &fc.Executed, &fc.Cancelled)
	if err != nil {
		return nil, err
	}
	fc.ThreatID = common.HexToHash(id)
	fc.Initiator = common.HexToAddress(initiator)
	fc.FrozenAtUnit = uint64(atUnit)
	fc.FreezeExpiry = uint64(exp)
	return &fc, nil
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("freeze: malformed numeric %q", s)
	}
	return n, nil
}
