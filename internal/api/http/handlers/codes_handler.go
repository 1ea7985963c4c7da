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

// CodesHandler issues verification codes.
type CodesHandler struct {
	service    *service.CodeService
	clock      Clock
	exposeCode bool
}

// NewCodesHandler constructs handler. With exposeCode the plaintext value is
// echoed back to the caller, which only development setups should allow.
func NewCodesHandler(codeService *service.CodeService, clock Clock, exposeCode bool) *CodesHandler {
	return &CodesHandler{service: codeService, clock: clock, exposeCode: exposeCode}
}

// Issue POST /v1/codes.
func (h *CodesHandler) Issue(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.IssueCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Purpose == "" {
		return apperrors.NewValidationError("purpose required", nil)
	}

	switch principal.Role {
	case domain.RoleMember:
		if req.MemberID == "" {
			req.MemberID = principal.SubjectID
		}
		if req.MemberID != principal.SubjectID {
			return apperrors.NewForbidden("members may only request their own codes")
		}
	case domain.RoleAdmin:
		if req.MemberID == "" {
			return apperrors.NewValidationError("member_id required", nil)
		}
	default:
		return apperrors.NewForbidden("insufficient role")
	}

	result, err := h.service.Issue(c.UserContext(), service.IssueInput{
		MemberID: req.MemberID,
		Purpose:  req.Purpose,
	}, h.clock.now())
	if err != nil {
		return err
	}

	resp := dto.NewCodeResponse(result.Code)
	resp.DeliveryWarning = result.DeliveryWarning
	if h.exposeCode {
		resp.Code = result.Value
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": resp})
}

// History GET /v1/members/:id/codes?purpose=HOSPITAL_VISIT.
func (h *CodesHandler) History(c *fiber.Ctx) error {
	purpose := domain.CodePurpose(c.Query("purpose", string(domain.PurposeHospitalVisit)))
	codes, err := h.service.History(c.UserContext(), c.Params("id"), purpose)
	if err != nil {
		return err
	}
	items := make([]dto.CodeResponse, 0, len(codes))
	for i := range codes {
		items = append(items, dto.NewCodeResponse(&codes[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
