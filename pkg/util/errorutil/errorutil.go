package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to API callers.
const (
	CodeInvalidMember     = "INVALID_MEMBER"
	CodeUnknownPurpose    = "UNKNOWN_PURPOSE"
	CodeCodeNotFound      = "CODE_NOT_FOUND"
	CodeCodeExpired       = "CODE_EXPIRED"
	CodeCodeAlreadyUsed   = "CODE_ALREADY_USED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInvalidVisitState = "INVALID_VISIT_STATE"
	CodeVisitNotClosed    = "VISIT_NOT_CLOSED"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeInvalidClaimState = "INVALID_CLAIM_STATE"
	CodeDuplicateClaim    = "DUPLICATE_CLAIM"
	CodeUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	CodeMemberNotFound    = "MEMBER_NOT_FOUND"
	CodeVisitNotFound     = "VISIT_NOT_FOUND"
	CodeClaimNotFound     = "CLAIM_NOT_FOUND"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL_ERROR"
)

// Workflow failures. Compare with errors.Is; copies made through WithDetails
// or Wrap still match because matching is by Code.
var (
	ErrInvalidMember     = NewDomainError(CodeInvalidMember, "member is not active", http.StatusUnprocessableEntity, nil)
	ErrUnknownPurpose    = NewDomainError(CodeUnknownPurpose, "unknown verification purpose", http.StatusBadRequest, nil)
	ErrCodeNotFound      = NewDomainError(CodeCodeNotFound, "verification code not found", http.StatusNotFound, nil)
	ErrCodeExpired       = NewDomainError(CodeCodeExpired, "verification code has expired", http.StatusGone, nil)
	ErrCodeAlreadyUsed   = NewDomainError(CodeCodeAlreadyUsed, "verification code is no longer valid", http.StatusConflict, nil)
	ErrRateLimited       = NewDomainError(CodeRateLimited, "too many requests, try again later", http.StatusTooManyRequests, nil)
	ErrInvalidVisitState = NewDomainError(CodeInvalidVisitState, "visit cannot change from its current state", http.StatusConflict, nil)
	ErrVisitNotClosed    = NewDomainError(CodeVisitNotClosed, "visit must be closed before a claim is submitted", http.StatusConflict, nil)
	ErrInvalidAmount     = NewDomainError(CodeInvalidAmount, "amount must be positive", http.StatusBadRequest, nil)
	ErrInvalidClaimState = NewDomainError(CodeInvalidClaimState, "claim cannot change from its current state", http.StatusConflict, nil)
	ErrDuplicateClaim    = NewDomainError(CodeDuplicateClaim, "visit already has an active claim", http.StatusConflict, nil)
	ErrUpstreamTimeout   = NewDomainError(CodeUpstreamTimeout, "upstream dependency did not respond in time", http.StatusGatewayTimeout, nil)
	ErrMemberNotFound    = NewDomainError(CodeMemberNotFound, "member not found", http.StatusNotFound, nil)
	ErrVisitNotFound     = NewDomainError(CodeVisitNotFound, "visit not found", http.StatusNotFound, nil)
	ErrClaimNotFound     = NewDomainError(CodeClaimNotFound, "claim not found", http.StatusNotFound, nil)
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of e carrying details.
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	cp := *e
	cp.Details = details
	return &cp
}

// Wrap returns a copy of e with err as its cause.
func (e *DomainError) Wrap(err error) *DomainError {
	cp := *e
	cp.Err = err
	return &cp
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
