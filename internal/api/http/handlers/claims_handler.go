package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visit-verification/internal/api/dto"
	"github.com/spec-kit/visit-verification/internal/auth"
	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/service"
	apperrors "github.com/spec-kit/visit-verification/pkg/util/errorutil"
)

// ClaimsHandler manages claim submission and review endpoints.
type ClaimsHandler struct {
	service *service.ClaimService
	clock   Clock
}

// NewClaimsHandler constructs handler.
func NewClaimsHandler(claimService *service.ClaimService, clock Clock) *ClaimsHandler {
	return &ClaimsHandler{service: claimService, clock: clock}
}

// Submit POST /v1/claims.
func (h *ClaimsHandler) Submit(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Role != domain.RoleHospital {
		return apperrors.NewForbidden("hospital required")
	}
	var req dto.SubmitClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.VisitID == "" {
		return apperrors.NewValidationError("visit_id required", nil)
	}

	claim, err := h.service.Submit(c.UserContext(), service.SubmitInput{
		VisitID:    req.VisitID,
		HospitalID: principal.HospitalID,
		Amount:     req.Amount,
		ClaimType:  req.ClaimType,
	}, h.clock.now())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewClaimResponse(claim)})
}

// GetClaim GET /v1/claims/:id.
func (h *ClaimsHandler) GetClaim(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	claim, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if !principal.CanSeeHospitalRecord(claim.HospitalID) {
		return apperrors.ErrClaimNotFound
	}
	return c.JSON(fiber.Map{"data": dto.NewClaimResponse(claim)})
}

// Decide POST /v1/claims/:id/decision.
func (h *ClaimsHandler) Decide(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.DecideClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	claim, err := h.service.Decide(c.UserContext(), c.Params("id"), service.Decision{
		Outcome:         req.Outcome,
		ApprovedAmount:  req.ApprovedAmount,
		ReviewerID:      principal.SubjectID,
		Notes:           req.Notes,
		RejectionReason: req.RejectionReason,
	}, h.clock.now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewClaimResponse(claim)})
}
