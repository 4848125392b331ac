package oracle

import (
	"context"
	"database/sql"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cordonlabs/cordon/internal/freeze"
)

// PostgresStore persists analysis requests in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed analysis store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (p *PostgresStore) CreateRequest(ctx context.Context, a *Analysis) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO analysis_requests (
			threat_id, target, caller, payload, requested_at,
			completed, analysis_text, suggested_action, is_critical, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (threat_id) DO NOTHING`,
		a.ThreatID.Hex(), a.Target.Hex(), a.Caller.Hex(), a.Payload, a.RequestedAt,
		a.Completed, a.AnalysisText, string(a.SuggestedAction), a.IsCritical,
		nullTime(a.CompletedAt),
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id common.Hash) (*Analysis, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT threat_id, target, caller, payload, requested_at,
		       completed, analysis_text, suggested_action, is_critical, completed_at
		FROM analysis_requests WHERE threat_id = $1`, id.Hex())

	a, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	return a, err
}

func (p *PostgresStore) Update(ctx context.Context, a *Analysis) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE analysis_requests SET
			completed = $1, analysis_text = $2, suggested_action = $3,
			is_critical = $4, completed_at = $5
		WHERE threat_id = $6`,
		a.Completed, a.AnalysisText, string(a.SuggestedAction),
		a.IsCritical, nullTime(a.CompletedAt), a.ThreatID.Hex(),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (p *PostgresStore) ListPending(ctx context.Context, limit int) ([]*Analysis, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT threat_id, target, caller, payload, requested_at,
		       completed, analysis_text, suggested_action, is_critical, completed_at
		FROM analysis_requests
		WHERE NOT completed
		ORDER BY requested_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*Analysis, error) {
	var (
		a                   Analysis
		id, target, caller  string
		action              string
		completedAt         sql.NullTime
	)
	err := s.Scan(
		&id, &target, &caller, &a.Payload, &a.RequestedAt,
		&a.Completed, &a.AnalysisText, &action, &a.IsCritical, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ThreatID = common.HexToHash(id)
	a.Target = common.HexToAddress(target)
	a.Caller = common.HexToAddress(caller)
	a.SuggestedAction = freeze.Action(action)
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
