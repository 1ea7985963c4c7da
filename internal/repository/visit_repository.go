package repository

import (
	"context"

	"github.com/spec-kit/visit-verification/internal/domain"
)

type visitRepository struct {
	db querier
}

func (r *visitRepository) Create(ctx context.Context, visit *domain.Visit) error {
	const query = `
        INSERT INTO visits (id, visit_number, member_id, hospital_id, code_id, visit_type, chief_complaint, state, opened_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, query,
		visit.ID,
		visit.VisitNumber,
		visit.MemberID,
		visit.HospitalID,
		visit.CodeID,
		visit.VisitType,
		visit.ChiefComplaint,
		visit.State,
		visit.OpenedAt,
	)
	return mapPgError(err)
}

func (r *visitRepository) GetByID(ctx context.Context, id string) (*domain.Visit, error) {
	const query = `
        SELECT id, visit_number, member_id, hospital_id, code_id, visit_type, chief_complaint,
               state, opened_at, closed_at, voided_at, void_reason
        FROM visits WHERE id=$1`
	var visit domain.Visit
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&visit.ID,
		&visit.VisitNumber,
		&visit.MemberID,
		&visit.HospitalID,
		&visit.CodeID,
		&visit.VisitType,
		&visit.ChiefComplaint,
		&visit.State,
		&visit.OpenedAt,
		&visit.ClosedAt,
		&visit.VoidedAt,
		&visit.VoidReason,
	); err != nil {
		return nil, mapPgError(err)
	}
	return &visit, nil
}

func (r *visitRepository) Transition(ctx context.Context, visit *domain.Visit, from domain.VisitState) error {
	const query = `
        UPDATE visits SET state=$1, closed_at=$2, voided_at=$3, void_reason=$4
        WHERE id=$5 AND state=$6`
	cmd, err := r.db.Exec(ctx, query,
		visit.State,
		visit.ClosedAt,
		visit.VoidedAt,
		visit.VoidReason,
		visit.ID,
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

