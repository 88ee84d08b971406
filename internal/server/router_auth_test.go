package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PedroFlores1996/democrasite/internal/auth"
	"github.com/PedroFlores1996/democrasite/internal/topics"
	"github.com/PedroFlores1996/democrasite/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/topics", http.NoBody)
	request.Header.Set("Authorization", "Bearer expired-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{validateErr: auth.ErrExpiredSessionToken},
		users:    &stubUserRegistry{},
		logger:   zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entry.Level)
	}
	if entry.Message != "session validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredSessionToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired token error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsUnexpectedTokenErrorAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/topics", http.NoBody)
	request.Header.Set("Authorization", "Bearer invalid-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{validateErr: auth.ErrInvalidSessionToken},
		users:    &stubUserRegistry{},
		logger:   zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for unexpected error, got %s", entries[0].Level)
	}
}

func TestAuthorizeRequestStoresRegisteredUsername(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodGet, "/api/topics", http.NoBody)

	registry := &stubUserRegistry{username: "alice"}
	handler := &httpHandler{
		sessions: stubSessionValidator{claims: auth.SessionClaims{DisplayName: "Alice"}},
		users:    registry,
		logger:   zap.NewNop(),
	}

	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected request to continue, got status %d", recorder.Code)
	}
	user, ok := currentUser(ctx)
	if !ok || user != "alice" {
		t.Fatalf("expected alice in context, got %q (%v)", user, ok)
	}
	if registry.calls != 1 {
		t.Fatalf("expected one registration, got %d", registry.calls)
	}
}

func TestAuthorizeRequestMapsRegistrationFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid identity", err: users.ErrInvalidIdentity, wantStatus: http.StatusUnauthorized},
		{name: "storage failure", err: errors.New("disk full"), wantStatus: http.StatusInternalServerError},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			recorder := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(recorder)
			ctx.Request = httptest.NewRequest(http.MethodGet, "/api/topics", http.NoBody)

			handler := &httpHandler{
				sessions: stubSessionValidator{},
				users:    &stubUserRegistry{err: testCase.err},
				logger:   zap.NewNop(),
			}

			handler.authorizeRequest(ctx)

			if recorder.Code != testCase.wantStatus {
				t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, testCase.wantStatus)
			}
			if !ctx.IsAborted() {
				t.Fatalf("expected request to be aborted")
			}
		})
	}
}

type stubSessionValidator struct {
	claims      auth.SessionClaims
	validateErr error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.SessionClaims, error) {
	if s.validateErr != nil {
		return auth.SessionClaims{}, s.validateErr
	}
	return s.claims, nil
}

type stubUserRegistry struct {
	username topics.Username
	err      error
	calls    int
}

func (s *stubUserRegistry) Lookup(_ context.Context, username topics.Username) (users.User, error) {
	return users.User{Username: username.String()}, nil
}

func (s *stubUserRegistry) DisplayNames(context.Context, []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (s *stubUserRegistry) Register(context.Context, auth.SessionClaims) (topics.Username, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.username, nil
}
