package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitChallengeAPI/internal/types/challenge"
	"fitChallengeAPI/middleware"
	"fitChallengeAPI/services"
	"fitChallengeAPI/tests/helpers"
)

// TestChallengeLifecycleFlow walks the main product loop over HTTP handlers:
// sign up via webhook, create a challenge, log a qualifying activity, read
// back the updated standings.
func TestChallengeLifecycleFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notificationService := services.NewNotificationService(pool)
	userService := services.NewUserService(pool, notificationService)
	challengeService := services.NewChallengeService(pool, notificationService)
	activityService := services.NewActivityService(pool, challengeService)

	userHandler := NewUserHandler(userService)
	challengeHandler := NewChallengeHandler(challengeService)
	activityHandler := NewActivityHandler(activityService)
	webhookHandler := NewWebhookHandler(userService)

	os.Setenv("CLERK_WEBHOOK_SECRET", "")
	defer os.Unsetenv("CLERK_WEBHOOK_SECRET")

	clerkID := "user_test_flow_" + time.Now().Format("20060102150405")

	// Step 1: Clerk reports a new signup.
	createPayload := fmt.Sprintf(`{
		"type": "user.created",
		"data": {
			"id": "%s",
			"username": "flowuser",
			"first_name": "Flow",
			"last_name": "User",
			"email_addresses": [{"email_address": "test.flow@example.com", "verification": {"status": "verified"}}]
		}
	}`, clerkID)

	req1 := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader([]byte(createPayload)))
	rr1 := httptest.NewRecorder()
	webhookHandler.HandleClerkWebhook(rr1, req1)
	require.Equal(t, http.StatusOK, rr1.Code, "webhook should succeed")

	withAuth := func(r *http.Request) *http.Request {
		ctx := context.WithValue(r.Context(), middleware.ClerkIDKey, clerkID)
		return r.WithContext(ctx)
	}

	// Step 2: user creates a steps challenge.
	createChallenge := `{
		"title": "Flow Steps",
		"type": "custom",
		"startDate": "2026-01-01T00:00:00Z",
		"openEnded": true,
		"rules": [{"activityType": "Steps", "metric": "steps", "targetValue": 5000, "points": 2, "timeframe": "day"}]
	}`
	req2 := withAuth(httptest.NewRequest(http.MethodPost, "/api/v1/challenges", bytes.NewReader([]byte(createChallenge))))
	rr2 := httptest.NewRecorder()
	challengeHandler.CreateChallenge(rr2, req2)
	require.Equal(t, http.StatusCreated, rr2.Code, rr2.Body.String())

	var created challenge.Challenge
	require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &created))
	assert.Equal(t, 1, created.ParticipantCount)

	// Step 3: the logging screen knows which inputs to show.
	req3 := withAuth(httptest.NewRequest(http.MethodGet, "/api/v1/challenges/activity-types", nil))
	rr3 := httptest.NewRecorder()
	challengeHandler.GetChallengeActivityTypes(rr3, req3)
	require.Equal(t, http.StatusOK, rr3.Code)
	assert.Contains(t, rr3.Body.String(), `"activityType":"Steps"`)

	// Step 4: a qualifying activity is logged and points land.
	logBody := `{"activityType": "Steps", "values": [{"metric": "steps", "value": 6000}]}`
	req4 := withAuth(httptest.NewRequest(http.MethodPost, "/api/v1/activities", bytes.NewReader([]byte(logBody))))
	rr4 := httptest.NewRecorder()
	activityHandler.LogActivity(rr4, req4)
	require.Equal(t, http.StatusCreated, rr4.Code, rr4.Body.String())
	assert.Contains(t, rr4.Body.String(), `"points":2`)

	// Step 5: standings show the new total.
	req5 := withAuth(httptest.NewRequest(http.MethodGet, "/api/v1/challenges/"+created.ID.String()+"/participants", nil))
	req5 = mux.SetURLVars(req5, map[string]string{"challengeId": created.ID.String()})
	rr5 := httptest.NewRecorder()
	challengeHandler.GetParticipants(rr5, req5)
	require.Equal(t, http.StatusOK, rr5.Code)

	var participants []challenge.Participant
	require.NoError(t, json.Unmarshal(rr5.Body.Bytes(), &participants))
	require.Len(t, participants, 1)
	assert.Equal(t, 2, participants[0].TotalPoints)

	// Step 6: the profile reflects lifetime points for leaderboards.
	req6 := withAuth(httptest.NewRequest(http.MethodGet, "/api/v1/user", nil))
	rr6 := httptest.NewRecorder()
	userHandler.GetProfile(rr6, req6)
	require.Equal(t, http.StatusOK, rr6.Code)
	assert.Contains(t, rr6.Body.String(), `"totalPoints":2`)
}
