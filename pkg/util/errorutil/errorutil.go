package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Sentinel causes wrapped by workflow DomainErrors. Match with errors.Is.
var (
	ErrAlreadyClosed      = errors.New("ticket already closed")
	ErrNotAnAssignee      = errors.New("only assignees can do this")
	ErrRetryableConflict  = errors.New("please try again")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrApplicantOnly      = errors.New("only the applicant can do this")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrUnsupportedPayload = errors.New("unsupported ticket payload")
)

// Kind classifies an error so callers can decide between retrying,
// reporting a user error, or treating it as a bug.
type Kind int

const (
	KindInternal Kind = iota
	KindUser
	KindRetry
	KindProgramming
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

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewAlreadyClosed reports an action attempted on a closed ticket.
func NewAlreadyClosed(ticketID string) error {
	return &DomainError{
		Code:       "ALREADY_CLOSED",
		Message:    "ticket already closed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"ticket_id": ticketID},
		Err:        ErrAlreadyClosed,
	}
}

// NewNotAnAssignee reports an actor missing from the active step.
func NewNotAnAssignee(stepID, processor string) error {
	return &DomainError{
		Code:       "NOT_AN_ASSIGNEE",
		Message:    "only assignees can do this",
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]any{"step_id": stepID, "processor": processor},
		Err:        ErrNotAnAssignee,
	}
}

// NewRetryableConflict reports a lost serial-number race. The caller
// should retry the whole open operation.
func NewRetryableConflict(cause error) error {
	return &DomainError{
		Code:       "PLEASE_TRY_AGAIN",
		Message:    "please try again",
		HTTPStatus: http.StatusConflict,
		Err:        errors.Join(ErrRetryableConflict, cause),
	}
}

// NewInvalidTransition reports a call the state machine cannot honour.
func NewInvalidTransition(message string, details map[string]any) error {
	return &DomainError{
		Code:       "INVALID_TRANSITION",
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
		Err:        ErrInvalidTransition,
	}
}

// NewApplicantOnly reports a non-applicant trying to close or reopen.
func NewApplicantOnly(ticketID string) error {
	return &DomainError{
		Code:       "FORBIDDEN",
		Message:    "only the applicant can do this",
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]any{"ticket_id": ticketID},
		Err:        ErrApplicantOnly,
	}
}

// NewTicketNotFound wraps ErrTicketNotFound.
func NewTicketNotFound(ticketID string) error {
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    "ticket not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"ticket_id": ticketID},
		Err:        ErrTicketNotFound,
	}
}

// Classify reports how a caller should treat err.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrRetryableConflict):
		return KindRetry
	case errors.Is(err, ErrInvalidTransition):
		return KindProgramming
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.HTTPStatus < http.StatusInternalServerError {
		return KindUser
	}
	return KindInternal
}

// IsRetryable reports whether err asks the caller to retry.
func IsRetryable(err error) bool {
	return Classify(err) == KindRetry
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
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// NewUnsupportedPayload reports a ticket type with no registered payload.
func NewUnsupportedPayload(ticketType string) error {
	return &DomainError{
		Code:       "VALIDATION_FAILED",
		Message:    "unsupported ticket type",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"type": ticketType},
		Err:        ErrUnsupportedPayload,
	}
}
