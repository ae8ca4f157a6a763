package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownSeason indicates a season token outside the canonical four.
	ErrUnknownSeason = errors.New("catalog: unknown season")
	// ErrPermissionDenied is returned by stores when row-level rules reject an operation.
	ErrPermissionDenied = errors.New("catalog: permission denied")
	// ErrNotFound indicates the addressed row does not exist or is not visible to the caller.
	ErrNotFound = errors.New("catalog: not found")
	// ErrEditorRoleRequired short-circuits editor-only actions for reader sessions.
	ErrEditorRoleRequired = errors.New("catalog: editor role required")
	// ErrInviteCodeNotConfigured indicates the server has no editor invite code.
	ErrInviteCodeNotConfigured = errors.New("catalog: editor invite code not configured")
	// ErrInviteCodeMismatch indicates the supplied editor invite code is wrong.
	ErrInviteCodeMismatch = errors.New("catalog: editor invite code mismatch")

	errMissingRepository = errors.New("repository is required")
	errMissingSession    = errors.New("session user id is required")
	errMissingRecipeID   = errors.New("recipe id is required")
	errMissingIngredient = errors.New("ingredient id or name is required")
	errEmptyPatch        = errors.New("patch has no allowed fields")
	errNoRecipeID        = errors.New("store returned no recipe id")
)

// ServiceError attaches a stable operation.reason code to an underlying failure.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ValidationError lists every problem found in an input before any store call is made.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "catalog: invalid input: " + strings.Join(e.Problems, "; ")
}

// PartialFailureError reports a multi-step mutation that stopped part way.
// Completed steps are not rolled back.
type PartialFailureError struct {
	Report CreationReport
	Cause  error
}

func (e *PartialFailureError) Error() string {
	failed := e.Report.FailedStep()
	if failed == nil {
		return fmt.Sprintf("catalog: recipe creation incomplete: %v", e.Cause)
	}
	return fmt.Sprintf("catalog: recipe creation stopped at %s: %v", failed.Name, e.Cause)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Cause
}
