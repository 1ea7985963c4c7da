package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/visit-verification/internal/domain"
)

type codeRepository struct {
	db querier
}

const codeColumns = `id, member_id, purpose, code_hash, state, issued_at, expires_at, consumed_at, revoked_at, expired_at`

func (r *codeRepository) Create(ctx context.Context, code *domain.VerificationCode) error {
	const query = `
        INSERT INTO verification_codes (id, member_id, purpose, code_hash, state, issued_at, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.db.Exec(ctx, query,
		code.ID,
		code.MemberID,
		code.Purpose,
		code.CodeHash,
		code.State,
		code.IssuedAt,
		code.ExpiresAt,
	)
	return mapPgError(err)
}

func (r *codeRepository) GetByID(ctx context.Context, id string) (*domain.VerificationCode, error) {
	query := `SELECT ` + codeColumns + ` FROM verification_codes WHERE id=$1`
	return scanCode(r.db.QueryRow(ctx, query, id))
}

func (r *codeRepository) FindLatest(ctx context.Context, memberID string, purpose domain.CodePurpose, codeHash string) (*domain.VerificationCode, error) {
	query := `SELECT ` + codeColumns + ` FROM verification_codes
        WHERE member_id=$1 AND purpose=$2 AND code_hash=$3
        ORDER BY issued_at DESC LIMIT 1`
	return scanCode(r.db.QueryRow(ctx, query, memberID, purpose, codeHash))
}

func (r *codeRepository) RevokeIssued(ctx context.Context, memberID string, purpose domain.CodePurpose, at time.Time) ([]domain.VerificationCode, error) {
	query := `UPDATE verification_codes SET state=$3, revoked_at=$4
        WHERE member_id=$1 AND purpose=$2 AND state='ISSUED'
        RETURNING ` + codeColumns
	rows, err := r.db.Query(ctx, query, memberID, purpose, domain.CodeStateRevoked, at)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanCodes(rows)
}

func (r *codeRepository) Transition(ctx context.Context, id string, from, to domain.CodeState, at time.Time) error {
	var column string
	switch to {
	case domain.CodeStateConsumed:
		column = "consumed_at"
	case domain.CodeStateRevoked:
		column = "revoked_at"
	case domain.CodeStateExpired:
		column = "expired_at"
	default:
		return ErrConflict
	}
	query := `UPDATE verification_codes SET state=$3, ` + column + `=$4 WHERE id=$1 AND state=$2`
	cmd, err := r.db.Exec(ctx, query, id, from, to, at)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *codeRepository) ListByMember(ctx context.Context, memberID string, purpose domain.CodePurpose) ([]domain.VerificationCode, error) {
	query := `SELECT ` + codeColumns + ` FROM verification_codes
        WHERE member_id=$1 AND purpose=$2 ORDER BY issued_at ASC`
	rows, err := r.db.Query(ctx, query, memberID, purpose)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanCodes(rows)
}

func scanCode(row pgx.Row) (*domain.VerificationCode, error) {
	var code domain.VerificationCode
	if err := row.Scan(
		&code.ID,
		&code.MemberID,
		&code.Purpose,
		&code.CodeHash,
		&code.State,
		&code.IssuedAt,
		&code.ExpiresAt,
		&code.ConsumedAt,
		&code.RevokedAt,
		&code.ExpiredAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	return &code, nil
}

func scanCodes(rows pgx.Rows) ([]domain.VerificationCode, error) {
	var result []domain.VerificationCode
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *code)
	}
	return result, rows.Err()
}
