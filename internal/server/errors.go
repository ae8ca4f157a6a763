package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
	"github.com/gin-gonic/gin"
)

const (
	errorCodeInvalidRequest          = "invalid_request"
	errorCodeUnauthorized            = "unauthorized"
	errorCodeEditorRoleRequired      = "editor_role_required"
	errorCodePermissionDenied        = "permission_denied"
	errorCodeNotFound                = "not_found"
	errorCodeInviteCodeMismatch      = "invite_code_mismatch"
	errorCodeInviteCodeNotConfigured = "invite_code_not_configured"
	errorCodeRemoteFailure           = "remote_failure"
	errorCodeRateLimited             = "rate_limited"

	invalidRequestSuffix = ".invalid_request"
)

// respondError maps a catalog failure onto a status code and a JSON error body.
func respondError(c *gin.Context, err error) {
	var validation *catalog.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    errorCodeInvalidRequest,
			"problems": validation.Problems,
		})
		return
	}

	var partial *catalog.PartialFailureError
	if errors.As(err, &partial) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  errorCodeRemoteFailure,
			"report": partial.Report,
		})
		return
	}

	switch {
	case errors.Is(err, catalog.ErrEditorRoleRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": errorCodeEditorRoleRequired})
	case errors.Is(err, catalog.ErrInviteCodeMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": errorCodeInviteCodeMismatch})
	case errors.Is(err, catalog.ErrInviteCodeNotConfigured):
		c.JSON(http.StatusConflict, gin.H{"error": errorCodeInviteCodeNotConfigured})
	case errors.Is(err, catalog.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": errorCodePermissionDenied})
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errorCodeNotFound})
	default:
		code := errorCodeRemoteFailure
		status := http.StatusBadGateway
		var serviceErr *catalog.ServiceError
		if errors.As(err, &serviceErr) {
			code = serviceErr.Code()
			if strings.HasSuffix(code, invalidRequestSuffix) {
				status = http.StatusBadRequest
			}
		}
		c.JSON(status, gin.H{"error": code})
	}
}
