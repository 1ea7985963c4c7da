package dto

import (
	"time"

	"github.com/spec-kit/visit-verification/internal/domain"
)

// IssueCodeRequest payload. Members may omit member_id; it defaults to the caller.
type IssueCodeRequest struct {
	MemberID string             `json:"member_id"`
	Purpose  domain.CodePurpose `json:"purpose"`
}

// CodeResponse describes an issued code. Code carries the plaintext value
// and is only present when the caller is allowed to see it.
type CodeResponse struct {
	ID              string             `json:"id"`
	MemberID        string             `json:"member_id"`
	Purpose         domain.CodePurpose `json:"purpose"`
	State           domain.CodeState   `json:"state"`
	IssuedAt        time.Time          `json:"issued_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
	ConsumedAt      *time.Time         `json:"consumed_at,omitempty"`
	RevokedAt       *time.Time         `json:"revoked_at,omitempty"`
	ExpiredAt       *time.Time         `json:"expired_at,omitempty"`
	Code            string             `json:"code,omitempty"`
	DeliveryWarning string             `json:"delivery_warning,omitempty"`
}

// NewCodeResponse maps a code without its plaintext.
func NewCodeResponse(code *domain.VerificationCode) CodeResponse {
	return CodeResponse{
		ID:         code.ID,
		MemberID:   code.MemberID,
		Purpose:    code.Purpose,
		State:      code.State,
		IssuedAt:   code.IssuedAt,
		ExpiresAt:  code.ExpiresAt,
		ConsumedAt: code.ConsumedAt,
		RevokedAt:  code.RevokedAt,
		ExpiredAt:  code.ExpiredAt,
	}
}
