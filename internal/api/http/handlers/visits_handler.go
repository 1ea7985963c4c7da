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

// VisitsHandler manages hospital visit endpoints.
type VisitsHandler struct {
	service *service.VisitService
	clock   Clock
}

// NewVisitsHandler constructs handler.
func NewVisitsHandler(visitService *service.VisitService, clock Clock) *VisitsHandler {
	return &VisitsHandler{service: visitService, clock: clock}
}

// Authorize POST /v1/visits.
func (h *VisitsHandler) Authorize(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Role != domain.RoleHospital {
		return apperrors.NewForbidden("hospital required")
	}
	var req dto.AuthorizeVisitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.MemberID == "" || req.Code == "" {
		return apperrors.NewValidationError("member_id and code required", nil)
	}

	visit, err := h.service.Authorize(c.UserContext(), service.AuthorizeInput{
		MemberID:       req.MemberID,
		HospitalID:     principal.HospitalID,
		Code:           req.Code,
		VisitType:      req.VisitType,
		ChiefComplaint: req.ChiefComplaint,
	}, h.clock.now())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewVisitResponse(visit)})
}

// GetVisit GET /v1/visits/:id.
func (h *VisitsHandler) GetVisit(c *fiber.Ctx) error {
	visit, err := h.visible(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewVisitResponse(visit)})
}

// Close POST /v1/visits/:id/close.
func (h *VisitsHandler) Close(c *fiber.Ctx) error {
	if _, err := h.visible(c); err != nil {
		return err
	}
	visit, err := h.service.Close(c.UserContext(), c.Params("id"), h.clock.now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewVisitResponse(visit)})
}

// Void POST /v1/visits/:id/void.
func (h *VisitsHandler) Void(c *fiber.Ctx) error {
	var req dto.VoidVisitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if _, err := h.visible(c); err != nil {
		return err
	}
	visit, err := h.service.Void(c.UserContext(), c.Params("id"), req.Reason, h.clock.now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewVisitResponse(visit)})
}

// visible loads the visit and hides visits of other hospitals as not found.
func (h *VisitsHandler) visible(c *fiber.Ctx) (*domain.Visit, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	visit, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if !principal.CanSeeHospitalRecord(visit.HospitalID) {
		return nil, apperrors.ErrVisitNotFound
	}
	return visit, nil
}
