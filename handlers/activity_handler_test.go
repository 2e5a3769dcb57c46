package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"fitChallengeAPI/middleware"
)

func TestLogActivityRequiresAuth(t *testing.T) {
	h := NewActivityHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()

	h.LogActivity(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "not authenticated")
}

func TestLogActivityRejectsInvalidBody(t *testing.T) {
	h := NewActivityHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", strings.NewReader(`{not json`))
	ctx := context.WithValue(req.Context(), middleware.ClerkIDKey, "user_test_123")
	req = req.WithContext(ctx)
	rr := httptest.NewRecorder()

	h.LogActivity(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid request body")
}
