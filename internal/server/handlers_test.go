package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PedroFlores1996/democrasite/internal/topics"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newStubbedHandler(t *testing.T, logger *zap.Logger) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator: stubSessionValidator{},
		Users:            &stubUserRegistry{username: "alice"},
		TopicsService:    &topics.Service{},
		Logger:           logger,
	})
	require.NoError(t, err)
	return handler
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	_, err := NewHTTPHandler(Dependencies{Users: &stubUserRegistry{}, TopicsService: &topics.Service{}})
	assert.ErrorIs(t, err, errMissingSessionValidator)

	_, err = NewHTTPHandler(Dependencies{SessionValidator: stubSessionValidator{}, TopicsService: &topics.Service{}})
	assert.ErrorIs(t, err, errMissingUserRegistry)

	_, err = NewHTTPHandler(Dependencies{SessionValidator: stubSessionValidator{}, Users: &stubUserRegistry{}})
	assert.ErrorIs(t, err, errMissingTopicsService)
}

func TestHandlersReportServiceErrorCodes(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := newStubbedHandler(t, zap.New(core))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   string
	}{
		{name: "create", method: http.MethodPost, path: "/api/topics", body: `{"title":"Lunch?","answers":["Pizza","Tacos"]}`, code: "topics.create_topic.missing_database"},
		{name: "search", method: http.MethodGet, path: "/api/topics", code: "topics.search_topics.missing_database"},
		{name: "view", method: http.MethodGet, path: "/api/topics/ABCD1234", code: "topics.view_topic.missing_database"},
		{name: "vote", method: http.MethodPost, path: "/api/topics/ABCD1234/votes", body: `{"choices":["Pizza"]}`, code: "topics.submit_vote.missing_database"},
		{name: "append", method: http.MethodPost, path: "/api/topics/ABCD1234/options", body: `{"option":"Sushi"}`, code: "topics.append_answer.missing_database"},
		{name: "description", method: http.MethodPatch, path: "/api/topics/ABCD1234/description", body: `{"description":"x"}`, code: "topics.update_description.missing_database"},
		{name: "tags", method: http.MethodPatch, path: "/api/topics/ABCD1234/tags", body: `{"tags":["food"]}`, code: "topics.update_tags.missing_database"},
		{name: "participants", method: http.MethodGet, path: "/api/topics/ABCD1234/users", code: "topics.list_participants.missing_database"},
		{name: "leave", method: http.MethodDelete, path: "/api/topics/ABCD1234/users", body: `{"username":"alice"}`, code: "topics.revoke_access.missing_database"},
		{name: "revoke", method: http.MethodDelete, path: "/api/topics/ABCD1234/users", body: `{"username":"bob"}`, code: "topics.remove_users.missing_database"},
		{name: "delete", method: http.MethodDelete, path: "/api/topics/ABCD1234", code: "topics.delete_topic.missing_database"},
		{name: "favorites", method: http.MethodGet, path: "/api/favorites", code: "topics.list_favorites.missing_database"},
		{name: "favorite add", method: http.MethodPost, path: "/api/favorites/ABCD1234", code: "topics.add_favorite.missing_database"},
		{name: "favorite remove", method: http.MethodDelete, path: "/api/favorites/ABCD1234", code: "topics.remove_favorite.missing_database"},
		{name: "favorite toggle", method: http.MethodPost, path: "/api/favorites/ABCD1234/toggle", code: "topics.toggle_favorite.missing_database"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			request := httptest.NewRequest(testCase.method, testCase.path, strings.NewReader(testCase.body))
			request.Header.Set("Content-Type", "application/json")
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			require.Equal(t, http.StatusInternalServerError, recorder.Code, recorder.Body.String())
			var payload map[string]string
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
			assert.Equal(t, "internal_error", payload["error"])
			assert.Equal(t, testCase.code, payload["code"])
			assert.Equal(t, "internal error", payload["message"])
		})
	}

	assert.NotEmpty(t, logs.FilterMessage("request failed").All())
}

func TestHandlersRejectMalformedRequests(t *testing.T) {
	handler := newStubbedHandler(t, zap.NewNop())

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "malformed share code", method: http.MethodGet, path: "/api/topics/abc", wantStatus: http.StatusNotFound, wantError: "not_found"},
		{name: "bad page", method: http.MethodGet, path: "/api/topics?page=two", wantStatus: http.StatusBadRequest, wantError: "invalid_page"},
		{name: "bad limit", method: http.MethodGet, path: "/api/topics?limit=x", wantStatus: http.StatusBadRequest, wantError: "invalid_limit"},
		{name: "unknown sort", method: http.MethodGet, path: "/api/topics?sort=loudest", wantStatus: http.StatusBadRequest, wantError: "validation_error"},
		{name: "broken json", method: http.MethodPost, path: "/api/topics", body: `{"title":`, wantStatus: http.StatusBadRequest, wantError: "invalid_request"},
		{name: "blank revoke target", method: http.MethodDelete, path: "/api/topics/ABCD1234/users", body: `{"username":"  "}`, wantStatus: http.StatusBadRequest, wantError: "validation_error"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			request := httptest.NewRequest(testCase.method, testCase.path, strings.NewReader(testCase.body))
			request.Header.Set("Content-Type", "application/json")
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			require.Equal(t, testCase.wantStatus, recorder.Code, recorder.Body.String())
			var payload map[string]any
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
			assert.Equal(t, testCase.wantError, payload["error"])
		})
	}
}

func TestClassifyErrorMapsTaxonomy(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{err: topics.ErrValidation, wantStatus: http.StatusBadRequest, wantKind: "validation_error"},
		{err: topics.ErrInvalidChoice, wantStatus: http.StatusBadRequest, wantKind: "invalid_choice"},
		{err: topics.ErrTooManyChoices, wantStatus: http.StatusBadRequest, wantKind: "too_many_choices"},
		{err: topics.ErrDuplicateAnswer, wantStatus: http.StatusBadRequest, wantKind: "duplicate_answer"},
		{err: topics.ErrForbidden, wantStatus: http.StatusForbidden, wantKind: "forbidden"},
		{err: fmt.Errorf("wrapped: %w", topics.ErrNotFound), wantStatus: http.StatusNotFound, wantKind: "not_found"},
		{err: topics.ErrConflict, wantStatus: http.StatusInternalServerError, wantKind: "internal_error"},
		{err: errors.New("connection reset"), wantStatus: http.StatusInternalServerError, wantKind: "internal_error"},
	}

	for _, testCase := range tests {
		status, kind := classifyError(testCase.err)
		assert.Equal(t, testCase.wantStatus, status, testCase.err.Error())
		assert.Equal(t, testCase.wantKind, kind, testCase.err.Error())
	}
}

func TestHealthzSkipsAuthentication(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator: stubSessionValidator{validateErr: errors.New("no session")},
		Users:            &stubUserRegistry{},
		TopicsService:    &topics.Service{},
	})
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/favorites", http.NoBody))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
