package registry

import (
	"context"
	"database/sql"

	"github.com/ethereum/go-ethereum/common"
)

// PostgresStore persists protected targets in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed target store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (p *PostgresStore) Upsert(ctx context.Context, t *ProtectedTarget) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO protected_targets (
			address, is_protected, protection_level,
			last_audit_time, registered_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			is_protected = EXCLUDED.is_protected,
			protection_level = EXCLUDED.protection_level,
			last_audit_time = EXCLUDED.last_audit_time,
			updated_at = EXCLUDED.updated_at`,
		t.Address.Hex(), t.Protected, t.ProtectionLevel,
		t.LastAuditTime, t.RegisteredAt, t.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, addr common.Address) (*ProtectedTarget, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT address, is_protected, protection_level,
		       last_audit_time, registered_at, updated_at
		FROM protected_targets WHERE address = $1`, addr.Hex())

	t, err := scanTarget(row)
	if err == sql.ErrNoRows {
		return nil, ErrTargetNotFound
	}
	return t, err
}

func (p *PostgresStore) List(ctx context.Context, activeOnly bool, limit int) ([]*ProtectedTarget, error) {
	query := `
		SELECT address, is_protected, protection_level,
		       last_audit_time, registered_at, updated_at
		FROM protected_targets`
	if activeOnly {
		query += " WHERE is_protected"
	}
	query += " ORDER BY registered_at ASC LIMIT $1"

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ProtectedTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(s scanner) (*ProtectedTarget, error) {
	var (
		t    ProtectedTarget
		addr string
	)
	err := s.Scan(&addr, &t.Protected, &t.ProtectionLevel,
		&t.LastAuditTime, &t.RegisteredAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Address = common.HexToAddress(addr)
	return &t, nil
}
