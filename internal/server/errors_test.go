package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
	"github.com/gin-gonic/gin"
)

func TestRespondErrorMapsCatalogFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testCases := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "validation",
			err:            &catalog.ValidationError{Problems: []string{"Recipe name is required."}},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"error":"invalid_request","problems":["Recipe name is required."]}`,
		},
		{
			name:           "editor role",
			err:            catalog.ErrEditorRoleRequired,
			expectedStatus: http.StatusForbidden,
			expectedBody:   `{"error":"editor_role_required"}`,
		},
		{
			name:           "wrapped permission denied",
			err:            fmt.Errorf("update: %w", catalog.ErrPermissionDenied),
			expectedStatus: http.StatusForbidden,
			expectedBody:   `{"error":"permission_denied"}`,
		},
		{
			name:           "not found",
			err:            catalog.ErrNotFound,
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"not_found"}`,
		},
		{
			name:           "invite mismatch",
			err:            catalog.ErrInviteCodeMismatch,
			expectedStatus: http.StatusForbidden,
			expectedBody:   `{"error":"invite_code_mismatch"}`,
		},
		{
			name:           "invite not configured",
			err:            catalog.ErrInviteCodeNotConfigured,
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"error":"invite_code_not_configured"}`,
		},
		{
			name:           "opaque failure",
			err:            errors.New("connection reset"),
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"error":"remote_failure"}`,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(recorder)

			respondError(ctx, testCase.err)

			if recorder.Code != testCase.expectedStatus {
				t.Fatalf("expected status %d, got %d", testCase.expectedStatus, recorder.Code)
			}
			if recorder.Body.String() != testCase.expectedBody {
				t.Fatalf("unexpected response body: %s", recorder.Body.String())
			}
		})
	}
}

func TestRespondErrorIncludesPartialReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)

	report := catalog.CreationReport{
		Recipe: &catalog.Recipe{ID: "r1", Name: "Soup"},
		Steps: []catalog.CreationStep{
			{Name: "create_recipe", Target: "Soup", Status: catalog.StepCompleted},
			{Name: "set_seasons", Status: catalog.StepFailed, Error: "offline"},
		},
	}
	respondError(ctx, &catalog.PartialFailureError{Report: report, Cause: errors.New("offline")})

	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", recorder.Code)
	}
	body := decodeBody[struct {
		Error  string                 `json:"error"`
		Report catalog.CreationReport `json:"report"`
	}](t, recorder)
	if body.Error != errorCodeRemoteFailure || body.Report.Recipe == nil || body.Report.FailedStep().Name != "set_seasons" {
		t.Fatalf("unexpected partial body %s", recorder.Body.String())
	}
}

func TestRespondErrorUsesServiceErrorCode(t *testing.T) {
	server := newTestServer(t)
	token := server.editorToken(t, "editor-1")

	recorder := server.do(t, http.MethodPatch, "/recipes/r1", token, map[string]any{})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty patch, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "catalog.update_recipe.invalid_request") {
		t.Fatalf("expected the service error code, got %s", recorder.Body.String())
	}
}
