package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/visit-verification/internal/domain"
)

type memberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository reads member status from the registry's members table.
func NewMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &memberRepository{pool: pool}
}

func (r *memberRepository) GetMember(ctx context.Context, memberID string) (*domain.Member, error) {
	const query = `
        SELECT id, full_name, phone_number, email, status
        FROM members WHERE id=$1`
	var member domain.Member
	if err := r.pool.QueryRow(ctx, query, memberID).Scan(
		&member.ID,
		&member.FullName,
		&member.PhoneNumber,
		&member.Email,
		&member.Status,
	); err != nil {
		return nil, mapPgError(err)
	}
	return &member, nil
}
