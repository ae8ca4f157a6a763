package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/database"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "test-signing-secret"
	testInviteCode    = "open-sesame"
)

type testServer struct {
	handler http.Handler
	issuer  *auth.TokenIssuer
	events  *EventHub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(database.Config{Driver: database.DriverSQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store, err := database.NewStore(database.StoreConfig{DB: db, IDProvider: database.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}

	events := NewEventHub()
	service, err := catalog.NewService(catalog.ServiceConfig{
		Repository: store,
		Notifier:   events,
		InviteCode: testInviteCode,
	})
	if err != nil {
		t.Fatalf("failed to build catalog service: %v", err)
	}

	validator, err := auth.NewTokenValidator(auth.TokenValidatorConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenValidator:    validator,
		Catalog:           service,
		Events:            events,
		Logger:            zap.NewNop(),
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &testServer{handler: handler, issuer: issuer, events: events}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := s.issuer.IssueAccessToken(userID, userID+"@example.com")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

// editorToken returns a token for userID after upgrading the user to editor.
func (s *testServer) editorToken(t *testing.T, userID string) string {
	t.Helper()
	token := s.token(t, userID)
	recorder := s.do(t, http.MethodPost, "/me/editor", token, map[string]string{"code": testInviteCode})
	if recorder.Code != http.StatusOK {
		t.Fatalf("failed to upgrade %s: %d %s", userID, recorder.Code, recorder.Body.String())
	}
	return token
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode body %q: %v", recorder.Body.String(), err)
	}
	return value
}

func (s *testServer) preflight(t *testing.T, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodOptions, path, http.NoBody)
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}
