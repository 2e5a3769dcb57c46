package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitChallengeAPI/internal/types/activity"
	"fitChallengeAPI/internal/types/challenge"
	"fitChallengeAPI/tests/helpers"
)

func steps(n float64) *activity.Activity {
	return &activity.Activity{ActivityType: activity.TypeSteps, Metric: challenge.MetricSteps, Steps: n}
}

func TestRuleSatisfied(t *testing.T) {
	tests := []struct {
		name string
		rule challenge.Rule
		act  activity.Activity
		want bool
	}{
		{
			name: "steps at threshold",
			rule: challenge.Rule{Metric: challenge.MetricSteps, TargetValue: 5000},
			act:  *steps(5000),
			want: true,
		},
		{
			name: "steps one below threshold",
			rule: challenge.Rule{Metric: challenge.MetricSteps, TargetValue: 5000},
			act:  *steps(4999),
			want: false,
		},
		{
			name: "time compared in minutes",
			rule: challenge.Rule{Metric: challenge.MetricTime, TargetValue: 90},
			act:  activity.Activity{Metric: challenge.MetricTime, DurationMinutes: 90},
			want: true,
		},
		{
			name: "time below threshold",
			rule: challenge.Rule{Metric: challenge.MetricTime, TargetValue: 90},
			act:  activity.Activity{Metric: challenge.MetricTime, DurationMinutes: 89.9},
			want: false,
		},
		{
			name: "km rule against km activity",
			rule: challenge.Rule{Metric: challenge.MetricDistanceKm, TargetValue: 5},
			act:  activity.Activity{Metric: challenge.MetricDistanceKm, DistanceKm: 5.2},
			want: true,
		},
		{
			name: "km rule matches activity logged in miles",
			rule: challenge.Rule{Metric: challenge.MetricDistanceKm, TargetValue: 5},
			act:  activity.Activity{Metric: challenge.MetricDistanceMiles, DistanceKm: 5.2},
			want: true,
		},
		{
			// Legacy rule rows authored in miles before targets were
			// normalized to km: the target converts before comparing.
			name: "legacy miles rule target converted to km",
			rule: challenge.Rule{Metric: challenge.MetricDistanceMiles, TargetValue: 3},
			act:  activity.Activity{Metric: challenge.MetricDistanceKm, DistanceKm: 4.9},
			want: true,
		},
		{
			name: "legacy miles rule not met in km",
			rule: challenge.Rule{Metric: challenge.MetricDistanceMiles, TargetValue: 3},
			act:  activity.Activity{Metric: challenge.MetricDistanceKm, DistanceKm: 4.7},
			want: false,
		},
		{
			name: "calories",
			rule: challenge.Rule{Metric: challenge.MetricCalories, TargetValue: 300},
			act:  activity.Activity{Metric: challenge.MetricCalories, Calories: 300},
			want: true,
		},
		{
			name: "count",
			rule: challenge.Rule{Metric: challenge.MetricCount, TargetValue: 3},
			act:  activity.Activity{Metric: challenge.MetricCount, CountValue: 3},
			want: true,
		},
		{
			name: "metric mismatch never matches",
			rule: challenge.Rule{Metric: challenge.MetricSteps, TargetValue: 1},
			act:  activity.Activity{Metric: challenge.MetricCalories, Calories: 1000},
			want: false,
		},
		{
			name: "steps value not read from duration",
			rule: challenge.Rule{Metric: challenge.MetricSteps, TargetValue: 5000},
			act:  activity.Activity{Metric: challenge.MetricSteps, Steps: 100, DurationMinutes: 9000},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RuleSatisfied(&tt.rule, &tt.act))
		})
	}
}

func newTestServices(t *testing.T) (*ChallengeService, *ActivityService, func()) {
	pool := helpers.SetupTestDB(t)
	notifier := NewNotificationService(pool)
	challenges := NewChallengeService(pool, notifier)
	activities := NewActivityService(pool, challenges)
	return challenges, activities, func() { helpers.CleanupTestDB(t, pool) }
}

func stepsChallenge(t *testing.T, challenges *ChallengeService, clerkID string, target float64, points int) *challenge.Challenge {
	return typedStepsChallenge(t, challenges, clerkID, challenge.TypeCustom, target, points)
}

func typedStepsChallenge(t *testing.T, challenges *ChallengeService, clerkID string, typ challenge.ChallengeType, target float64, points int) *challenge.Challenge {
	c, err := challenges.CreateChallenge(context.Background(), clerkID, &challenge.CreateChallengeRequest{
		Title:     "Daily Steps " + time.Now().Format("150405.000"),
		Type:      typ,
		StartDate: time.Now(),
		OpenEnded: true,
		Rules: []challenge.RuleInput{
			{
				ActivityType: activity.TypeSteps,
				Metric:       challenge.MetricSteps,
				TargetValue:  target,
				Points:       points,
				Timeframe:    challenge.TimeframeDay,
			},
		},
	})
	require.NoError(t, err)
	return c
}

func TestSaveUserActivityAwardsPoints(t *testing.T) {
	challenges, activities, cleanup := newTestServices(t)
	defer cleanup()

	ctx := context.Background()
	userID, clerkID := helpers.CreateTestUser(t, challenges.db, "award")

	c := stepsChallenge(t, challenges, clerkID, 5000, 2)

	saved, reports, err := activities.SaveUserActivity(ctx, clerkID, &activity.LogActivityRequest{
		ActivityType: activity.TypeSteps,
		Values:       []activity.MetricValue{{Metric: challenge.MetricSteps, Value: 5000}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.Len(t, reports, 1)
	assert.Len(t, reports[0].Awards, 1)
	assert.Empty(t, reports[0].Failures)

	p, err := challenges.ParticipantForUser(ctx, c.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalPoints)
	require.NotNil(t, p.LastActivityDate)
}

func TestSaveUserActivityBelowThresholdAwardsNothing(t *testing.T) {
	challenges, activities, cleanup := newTestServices(t)
	defer cleanup()

	ctx := context.Background()
	userID, clerkID := helpers.CreateTestUser(t, challenges.db, "below")

	c := stepsChallenge(t, challenges, clerkID, 5000, 2)

	_, reports, err := activities.SaveUserActivity(ctx, clerkID, &activity.LogActivityRequest{
		ActivityType: activity.TypeSteps,
		Values:       []activity.MetricValue{{Metric: challenge.MetricSteps, Value: 4999}},
	})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Empty(t, reports[0].Awards)

	p, err := challenges.ParticipantForUser(ctx, c.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.TotalPoints)
}

func TestSaveUserActivityStoresTimeInMinutes(t *testing.T) {
	challenges, activities, cleanup := newTestServices(t)
	defer cleanup()

	ctx := context.Background()
	_, clerkID := helpers.CreateTestUser(t, challenges.db, "minutes")

	saved, _, err := activities.SaveUserActivity(ctx, clerkID, &activity.LogActivityRequest{
		ActivityType: activity.TypeWorkout,
		Values:       []activity.MetricValue{{Metric: challenge.MetricTime, Value: 1.5}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, 90.0, saved[0].DurationMinutes)

	fetched, err := activities.GetActivity(ctx, saved[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 90.0, fetched.DurationMinutes)
}

func TestSaveUserActivityCanonicalizesCustomTypes(t *testing.T) {
	challenges, activities, cleanup := newTestServices(t)
	defer cleanup()

	ctx := context.Background()
	_, clerkID := helpers.CreateTestUser(t, challenges.db, "custom")

	saved, _, err := activities.SaveUserActivity(ctx, clerkID, &activity.LogActivityRequest{
		ActivityType: "Handstand Practice",
		Values:       []activity.MetricValue{{Metric: challenge.MetricCount, Value: 10}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, activity.TypeCustom, saved[0].ActivityType)
	assert.Equal(t, "CustomName: Handstand Practice", saved[0].Notes)
}

func TestSaveUserActivityOneRowPerMetric(t *testing.T) {
	challenges, activities, cleanup := newTestServices(t)
	defer cleanup()

	ctx := context.Background()
	_, clerkID := helpers.CreateTestUser(t, challenges.db, "multi")

	saved, _, err := activities.SaveUserActivity(ctx, clerkID, &activity.LogActivityRequest{
		ActivityType: activity.TypeWorkout,
		Values: []activity.MetricValue{
			{Metric: challenge.MetricTime, Value: 1},
			{Metric: challenge.MetricDistanceMiles, Value: 3},
			{Metric: challenge.MetricCalories, Value: 250},
		},
	})
	require.NoError(t, err)
	require.Len(t, saved, 3)

	assert.Equal(t, 60.0, saved[0].DurationMinutes)
	assert.InDelta(t, 4.82802, saved[1].DistanceKm, 1e-4)
	assert.Equal(t, challenge.MetricDistanceMiles, saved[1].Metric)
	assert.Equal(t, 250.0, saved[2].Calories)
}

func TestSaveUserActivityValidatesBeforeAnyInsert(t *testing.T) {
	// nil pool: any database access panics, so the bad batch must be rejected
	// before the first insert.
	activities := NewActivityService(nil, nil)

	_, _, err := activities.SaveUserActivity(context.Background(), "user_test_validate", &activity.LogActivityRequest{
		ActivityType: activity.TypeSteps,
		Values: []activity.MetricValue{
			{Metric: challenge.MetricSteps, Value: 5000},
			{Metric: "banana", Value: 1},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid metric")

	_, _, err = activities.SaveUserActivity(context.Background(), "user_test_validate", &activity.LogActivityRequest{
		ActivityType: activity.TypeSteps,
		Values: []activity.MetricValue{
			{Metric: challenge.MetricSteps, Value: 5000},
			{Metric: challenge.MetricSteps, Value: -1},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestSaveUserActivityRejectedBatchPersistsNothing(t *testing.T) {
	challenges, activities, cleanup := newTestServices(t)
	defer cleanup()

	ctx := context.Background()
	userID, clerkID := helpers.CreateTestUser(t, challenges.db, "atomic")
	c := stepsChallenge(t, challenges, clerkID, 1000, 1)

	_, _, err := activities.SaveUserActivity(ctx, clerkID, &activity.LogActivityRequest{
		ActivityType: activity.TypeSteps,
		Values: []activity.MetricValue{
			{Metric: challenge.MetricSteps, Value: 5000},
			{Metric: "banana", Value: 1},
		},
	})
	require.Error(t, err)

	acts, err := activities.GetUserActivities(ctx, clerkID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, acts, "a rejected batch must not leave rows behind")

	p, err := challenges.ParticipantForUser(ctx, c.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.TotalPoints)
}

func TestStreakChallengeAdvancesAndResets(t *testing.T) {
	challenges, activities, cleanup := newTestServices(t)
	defer cleanup()

	ctx := context.Background()
	userID, clerkID := helpers.CreateTestUser(t, challenges.db, "streak")
	c := typedStepsChallenge(t, challenges, clerkID, challenge.TypeStreak, 1000, 1)

	logSteps := func() {
		_, reports, err := activities.SaveUserActivity(ctx, clerkID, &activity.LogActivityRequest{
			ActivityType: activity.TypeSteps,
			Values:       []activity.MetricValue{{Metric: challenge.MetricSteps, Value: 2000}},
		})
		require.NoError(t, err)
		require.Len(t, reports, 1)
		require.Empty(t, reports[0].Failures)
	}
	backdate := func(interval string) {
		_, err := challenges.db.Exec(ctx,
			`UPDATE challenge_participants SET last_activity_date = NOW() - $1::interval
			 WHERE challenge_id = $2 AND user_id = $3`,
			interval, c.ID, userID)
		require.NoError(t, err)
	}
	streaks := func() (int, int) {
		p, err := challenges.ParticipantForUser(ctx, c.ID, userID)
		require.NoError(t, err)
		return p.CurrentStreak, p.LongestStreak
	}

	// First award starts the streak.
	logSteps()
	cur, longest := streaks()
	assert.Equal(t, 1, cur)
	assert.Equal(t, 1, longest)

	// A second award on the same day does not double-count.
	logSteps()
	cur, longest = streaks()
	assert.Equal(t, 1, cur)
	assert.Equal(t, 1, longest)

	// Activity the day after the last one extends the streak.
	backdate("1 day")
	logSteps()
	cur, longest = streaks()
	assert.Equal(t, 2, cur)
	assert.Equal(t, 2, longest)

	// A gap resets the current streak; the longest survives it.
	backdate("3 days")
	logSteps()
	cur, longest = streaks()
	assert.Equal(t, 1, cur)
	assert.Equal(t, 2, longest)
}

func TestRaceMapPositionsFollowPointsRank(t *testing.T) {
	challenges, activities, cleanup := newTestServices(t)
	defer cleanup()

	ctx := context.Background()
	leaderID, leaderClerk := helpers.CreateTestUser(t, challenges.db, "race1")
	chaserID, chaserClerk := helpers.CreateTestUser(t, challenges.db, "race2")

	c := typedStepsChallenge(t, challenges, leaderClerk, challenge.TypeRace, 1000, 1)
	require.NoError(t, challenges.JoinChallenge(ctx, chaserClerk, c.ID))

	logSteps := func(clerkID string, times int) {
		for i := 0; i < times; i++ {
			_, reports, err := activities.SaveUserActivity(ctx, clerkID, &activity.LogActivityRequest{
				ActivityType: activity.TypeSteps,
				Values:       []activity.MetricValue{{Metric: challenge.MetricSteps, Value: 2000}},
			})
			require.NoError(t, err)
			require.Len(t, reports, 1)
			require.Empty(t, reports[0].Failures)
		}
	}

	logSteps(leaderClerk, 2)
	logSteps(chaserClerk, 1)

	participants, err := challenges.GetParticipants(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, participants, 2)

	assert.Equal(t, leaderID, participants[0].UserID)
	assert.Equal(t, 2, participants[0].TotalPoints)
	assert.Equal(t, 1, participants[0].MapPosition)

	assert.Equal(t, chaserID, participants[1].UserID)
	assert.Equal(t, 1, participants[1].TotalPoints)
	assert.Equal(t, 2, participants[1].MapPosition)
}

func TestConcurrentAwardsDoNotLoseIncrements(t *testing.T) {
	challenges, activities, cleanup := newTestServices(t)
	defer cleanup()

	ctx := context.Background()
	userID, clerkID := helpers.CreateTestUser(t, challenges.db, "race")

	c := stepsChallenge(t, challenges, clerkID, 1000, 1)

	const n = 20
	ids := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		act, err := activities.insertActivity(ctx, activities.db, userID, activity.TypeSteps, "", activity.SourceManual,
			activity.MetricValue{Metric: challenge.MetricSteps, Value: 2000})
		require.NoError(t, err)
		ids[i] = act.ID
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			report, err := activities.UpdateChallengesWithActivity(ctx, id, clerkID)
			assert.NoError(t, err)
			if err == nil {
				assert.Empty(t, report.Failures)
			}
		}(ids[i])
	}
	wg.Wait()

	p, err := challenges.ParticipantForUser(ctx, c.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, n, p.TotalPoints, "atomic increments must not lose updates")
}

func TestAwardPointsWithoutParticipantRowFails(t *testing.T) {
	challenges, activities, cleanup := newTestServices(t)
	defer cleanup()

	ctx := context.Background()
	userID, clerkID := helpers.CreateTestUser(t, challenges.db, "noprt")
	_, otherClerkID := helpers.CreateTestUser(t, challenges.db, "other")

	c := stepsChallenge(t, challenges, otherClerkID, 1000, 1)
	rule := &challenge.Rule{Points: 1}

	err := activities.awardPoints(ctx, c, rule, userID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active participant row")

	// The save flow itself never surfaces awarding problems.
	_, _, err = activities.SaveUserActivity(ctx, clerkID, &activity.LogActivityRequest{
		ActivityType: activity.TypeSteps,
		Values:       []activity.MetricValue{{Metric: challenge.MetricSteps, Value: 2000}},
	})
	assert.NoError(t, err)
}
