package repository

import (
	"context"

	"github.com/spec-kit/visit-verification/internal/domain"
)

type claimRepository struct {
	db querier
}

func (r *claimRepository) Create(ctx context.Context, claim *domain.Claim) error {
	const query = `
        INSERT INTO claims (id, claim_number, visit_id, hospital_id, claim_type, amount, state, submitted_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.db.Exec(ctx, query,
		claim.ID,
		claim.ClaimNumber,
		claim.VisitID,
		claim.HospitalID,
		claim.ClaimType,
		claim.Amount,
		claim.State,
		claim.SubmittedAt,
	)
	return mapPgError(err)
}

func (r *claimRepository) GetByID(ctx context.Context, id string) (*domain.Claim, error) {
	const query = `
        SELECT id, claim_number, visit_id, hospital_id, claim_type, amount, approved_amount, state,
               submitted_at, decided_at, reviewer_id, review_notes, rejection_reason
        FROM claims WHERE id=$1`
	var claim domain.Claim
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&claim.ID,
		&claim.ClaimNumber,
		&claim.VisitID,
		&claim.HospitalID,
		&claim.ClaimType,
		&claim.Amount,
		&claim.ApprovedAmount,
		&claim.State,
		&claim.SubmittedAt,
		&claim.DecidedAt,
		&claim.ReviewerID,
		&claim.ReviewNotes,
		&claim.RejectionReason,
	); err != nil {
		return nil, mapPgError(err)
	}
	return &claim, nil
}

func (r *claimRepository) HasActiveForVisit(ctx context.Context, visitID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM claims WHERE visit_id=$1 AND state IN ('SUBMITTED','APPROVED'))`
	var exists bool
	if err := r.db.QueryRow(ctx, query, visitID).Scan(&exists); err != nil {
		return false, mapPgError(err)
	}
	return exists, nil
}

func (r *claimRepository) Transition(ctx context.Context, claim *domain.Claim, from domain.ClaimState) error {
	const query = `
        UPDATE claims SET state=$1, approved_amount=$2, decided_at=$3, reviewer_id=$4,
            review_notes=$5, rejection_reason=$6
        WHERE id=$7 AND state=$8`
	cmd, err := r.db.Exec(ctx, query,
		claim.State,
		claim.ApprovedAmount,
		claim.DecidedAt,
		claim.ReviewerID,
		claim.ReviewNotes,
		claim.RejectionReason,
		claim.ID,
		from,
	)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}
