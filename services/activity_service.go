package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitChallengeAPI/internal/types/activity"
	"fitChallengeAPI/internal/types/challenge"
	"fitChallengeAPI/internal/types/notification"
	"fitChallengeAPI/middleware"
	"fitChallengeAPI/utils"
)

type ActivityService struct {
	db         *pgxpool.Pool
	challenges *ChallengeService
}

func NewActivityService(db *pgxpool.Pool, challenges *ChallengeService) *ActivityService {
	return &ActivityService{db: db, challenges: challenges}
}

// RuleAward records one successful points credit.
type RuleAward struct {
	RuleID      uuid.UUID `json:"ruleId"`
	ChallengeID uuid.UUID `json:"challengeId"`
	Points      int       `json:"points"`
}

// AwardFailure records one rule that could not be processed. The batch keeps
// going past these; they exist so callers and tests can see what was lost.
type AwardFailure struct {
	RuleID      uuid.UUID `json:"ruleId"`
	ChallengeID uuid.UUID `json:"challengeId"`
	Stage       string    `json:"stage"`
	Err         string    `json:"error"`
}

// AwardReport is the outcome of evaluating one activity against every rule of
// the user's active challenges.
type AwardReport struct {
	ActivityID uuid.UUID      `json:"activityId"`
	Awards     []RuleAward    `json:"awards"`
	Failures   []AwardFailure `json:"failures"`
}

// SaveUserActivity canonicalizes and stores a logged activity, then evaluates
// it against the user's challenge rules. One user action carrying several
// metric values produces one stored row per value, each evaluated separately.
// The whole batch is validated before anything is written and the rows commit
// in one transaction; a rejected request never persists part of the batch.
// Awarding failures never fail the save; they come back in the reports.
func (s *ActivityService) SaveUserActivity(ctx context.Context, clerkID string, req *activity.LogActivityRequest) ([]*activity.Activity, []*AwardReport, error) {
	if req.ActivityType == "" {
		return nil, nil, fmt.Errorf("activity type is required")
	}
	if len(req.Values) == 0 {
		return nil, nil, fmt.Errorf("at least one metric value is required")
	}
	for _, mv := range req.Values {
		if !mv.Metric.Valid() {
			return nil, nil, fmt.Errorf("invalid metric: %s", mv.Metric)
		}
		if mv.Value < 0 {
			return nil, nil, fmt.Errorf("metric value must not be negative")
		}
	}

	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, nil, err
	}

	canonical, notes := activity.Canonicalize(req.ActivityType)
	source := req.Source
	if source == "" {
		source = activity.SourceManual
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var saved []*activity.Activity
	for _, mv := range req.Values {
		act, err := s.insertActivity(ctx, tx, userID, canonical, notes, source, mv)
		if err != nil {
			return nil, nil, err
		}
		saved = append(saved, act)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to save activities: %w", err)
	}

	var reports []*AwardReport
	for _, act := range saved {
		// Evaluation runs exactly once per inserted row, after the batch
		// committed. Awarding problems are reported, never raised.
		report, err := s.UpdateChallengesWithActivity(ctx, act.ID, clerkID)
		if err != nil {
			log.Printf("SaveUserActivity: rule evaluation failed for activity %s: %v", act.ID, err)
			middleware.PointsAwardFailures.WithLabelValues("evaluate").Inc()
			continue
		}
		if len(report.Failures) > 0 {
			log.Printf("SaveUserActivity: %d rule(s) failed to award for activity %s", len(report.Failures), act.ID)
		}
		reports = append(reports, report)
	}

	return saved, reports, nil
}

// rowQuerier lets inserts run on the pool directly or inside a transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// insertActivity normalizes the value into canonical units and writes one
// row. Time arrives in hours and is stored in minutes; distance is stored in
// kilometers whatever unit the user logged in.
func (s *ActivityService) insertActivity(ctx context.Context, db rowQuerier, userID uuid.UUID, activityType, notes string, source activity.Source, mv activity.MetricValue) (*activity.Activity, error) {
	act := &activity.Activity{
		UserID:       userID,
		ActivityType: activityType,
		Notes:        notes,
		Source:       source,
	}

	switch mv.Metric {
	case challenge.MetricTime:
		act.Metric = challenge.MetricTime
		act.DurationMinutes = utils.HoursToMinutes(mv.Value)
	case challenge.MetricDistanceKm:
		act.Metric = challenge.MetricDistanceKm
		act.DistanceKm = mv.Value
	case challenge.MetricDistanceMiles:
		// Kilometers are the canonical storage unit; the metric tag keeps
		// the user's original unit for display.
		act.Metric = challenge.MetricDistanceMiles
		act.DistanceKm = utils.MilesToKm(mv.Value)
	case challenge.MetricCalories:
		act.Metric = challenge.MetricCalories
		act.Calories = mv.Value
	case challenge.MetricSteps:
		act.Metric = challenge.MetricSteps
		act.Steps = mv.Value
	case challenge.MetricCount:
		act.Metric = challenge.MetricCount
		act.CountValue = mv.Value
	}

	query := `
	INSERT INTO activities (id, user_id, activity_type, metric, duration_minutes, distance_km, calories, steps, count_value, notes, source, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	RETURNING id, created_at
	`
	err := db.QueryRow(
		ctx,
		query,
		uuid.New(),
		act.UserID,
		act.ActivityType,
		act.Metric,
		act.DurationMinutes,
		act.DistanceKm,
		act.Calories,
		act.Steps,
		act.CountValue,
		act.Notes,
		act.Source,
	).Scan(&act.ID, &act.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save activity: %w", err)
	}

	return act, nil
}

// UpdateChallengesWithActivity matches a stored activity against every rule
// of the user's active challenges and credits points for met thresholds. One
// rule failing (missing participant row, update error) is recorded in the
// report and the loop moves on; the whole batch never aborts. Callers invoke
// this exactly once per newly created activity id.
func (s *ActivityService) UpdateChallengesWithActivity(ctx context.Context, activityID uuid.UUID, clerkID string) (*AwardReport, error) {
	act, err := s.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	challenges, err := s.challenges.GetActiveChallengesForUser(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	report := &AwardReport{ActivityID: activityID}

	for _, c := range challenges {
		rules, err := s.challenges.GetRulesForActivity(ctx, c.ID, act.ActivityType)
		if err != nil {
			log.Printf("UpdateChallengesWithActivity: failed to fetch rules for challenge %s: %v", c.ID, err)
			middleware.PointsAwardFailures.WithLabelValues("fetch_rules").Inc()
			report.Failures = append(report.Failures, AwardFailure{
				ChallengeID: c.ID, Stage: "fetch_rules", Err: err.Error(),
			})
			continue
		}

		awardedRace := false
		for _, rule := range rules {
			if !RuleSatisfied(rule, act) {
				continue
			}

			if err := s.awardPoints(ctx, c, rule, act.UserID); err != nil {
				log.Printf("UpdateChallengesWithActivity: failed to award points for rule %s: %v", rule.ID, err)
				middleware.PointsAwardFailures.WithLabelValues("award").Inc()
				report.Failures = append(report.Failures, AwardFailure{
					RuleID: rule.ID, ChallengeID: c.ID, Stage: "award", Err: err.Error(),
				})
				continue
			}

			report.Awards = append(report.Awards, RuleAward{
				RuleID:      rule.ID,
				ChallengeID: c.ID,
				Points:      rule.Points,
			})
			awardedRace = awardedRace || c.Type == challenge.TypeRace
		}

		if awardedRace {
			if err := s.challenges.RecomputeMapPositions(ctx, c.ID); err != nil {
				log.Printf("UpdateChallengesWithActivity: map position recompute failed for challenge %s: %v", c.ID, err)
			}
		}
	}

	return report, nil
}

// RuleSatisfied decides whether one stored activity meets one rule's
// threshold. Comparison is always in canonical units; legacy rule rows still
// carrying a miles metric get their target converted here.
func RuleSatisfied(rule *challenge.Rule, act *activity.Activity) bool {
	switch rule.Metric {
	case challenge.MetricTime:
		return act.Metric == challenge.MetricTime && act.DurationMinutes >= rule.TargetValue
	case challenge.MetricDistanceKm:
		return isDistance(act.Metric) && act.DistanceKm >= rule.TargetValue
	case challenge.MetricDistanceMiles:
		return isDistance(act.Metric) && act.DistanceKm >= utils.MilesToKm(rule.TargetValue)
	case challenge.MetricCalories:
		return act.Metric == challenge.MetricCalories && act.Calories >= rule.TargetValue
	case challenge.MetricSteps:
		return act.Metric == challenge.MetricSteps && act.Steps >= rule.TargetValue
	case challenge.MetricCount:
		return act.Metric == challenge.MetricCount && act.CountValue >= rule.TargetValue
	}
	return false
}

func isDistance(m challenge.Metric) bool {
	return m == challenge.MetricDistanceKm || m == challenge.MetricDistanceMiles
}

// awardPoints credits a rule's points in a single atomic increment, so two
// sessions logging at the same time cannot lose an update. Streak counters on
// streak challenges advance in the same statement, keyed off the previous
// last_activity_date.
func (s *ActivityService) awardPoints(ctx context.Context, c *challenge.Challenge, rule *challenge.Rule, userID uuid.UUID) error {
	var query string
	if c.Type == challenge.TypeStreak {
		query = `
		UPDATE challenge_participants
		SET total_points = total_points + $1,
		    current_streak = CASE
		        WHEN last_activity_date::date = CURRENT_DATE THEN current_streak
		        WHEN last_activity_date::date = CURRENT_DATE - 1 THEN current_streak + 1
		        ELSE 1
		    END,
		    longest_streak = GREATEST(longest_streak, CASE
		        WHEN last_activity_date::date = CURRENT_DATE THEN current_streak
		        WHEN last_activity_date::date = CURRENT_DATE - 1 THEN current_streak + 1
		        ELSE 1
		    END),
		    last_activity_date = NOW()
		WHERE challenge_id = $2 AND user_id = $3 AND status = 'active'
		`
	} else {
		query = `
		UPDATE challenge_participants
		SET total_points = total_points + $1,
		    last_activity_date = NOW()
		WHERE challenge_id = $2 AND user_id = $3 AND status = 'active'
		`
	}

	result, err := s.db.Exec(ctx, query, rule.Points, c.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to update participant points: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no active participant row for challenge %s", c.ID)
	}

	// Lifetime total on the profile feeds the leaderboards; best effort.
	if _, err := s.db.Exec(ctx,
		`UPDATE users SET total_points = total_points + $1 WHERE id = $2`,
		rule.Points, userID,
	); err != nil {
		log.Printf("awardPoints: failed to update lifetime points for user %s: %v", userID, err)
	}

	if s.challenges.notifier != nil {
		req := &notification.CreateNotificationRequest{
			UserID: userID,
			Type:   notification.TypePointsAwarded,
			Title:  "Points earned",
			Body:   fmt.Sprintf("You earned %d points in %s", rule.Points, c.Title),
			Data:   map[string]any{"challenge_id": c.ID.String(), "points": rule.Points},
		}
		if _, err := s.challenges.notifier.CreateNotification(ctx, req); err != nil {
			log.Printf("awardPoints: failed to create notification: %v", err)
		}
	}

	return nil
}

func (s *ActivityService) GetActivity(ctx context.Context, activityID uuid.UUID) (*activity.Activity, error) {
	query := `
	SELECT id, user_id, activity_type, metric, duration_minutes, distance_km, calories, steps, count_value, notes, source, created_at
	FROM activities
	WHERE id = $1
	`

	act := &activity.Activity{}
	err := s.db.QueryRow(ctx, query, activityID).Scan(
		&act.ID,
		&act.UserID,
		&act.ActivityType,
		&act.Metric,
		&act.DurationMinutes,
		&act.DistanceKm,
		&act.Calories,
		&act.Steps,
		&act.CountValue,
		&act.Notes,
		&act.Source,
		&act.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("activity not found")
		}
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}

	return act, nil
}

func (s *ActivityService) GetUserActivities(ctx context.Context, clerkID string, limit, offset int) ([]*activity.Activity, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
	SELECT id, user_id, activity_type, metric, duration_minutes, distance_km, calories, steps, count_value, notes, source, created_at
	FROM activities
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activities: %w", err)
	}
	defer rows.Close()

	var activities []*activity.Activity
	for rows.Next() {
		act := &activity.Activity{}
		err := rows.Scan(
			&act.ID,
			&act.UserID,
			&act.ActivityType,
			&act.Metric,
			&act.DurationMinutes,
			&act.DistanceKm,
			&act.Calories,
			&act.Steps,
			&act.CountValue,
			&act.Notes,
			&act.Source,
			&act.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, act)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}

// DeleteActivity removes a logged activity. Points already credited through
// it stay credited.
func (s *ActivityService) DeleteActivity(ctx context.Context, clerkID string, activityID uuid.UUID) error {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(ctx, `DELETE FROM activities WHERE id = $1 AND user_id = $2`, activityID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("activity not found")
	}

	return nil
}

func (s *ActivityService) resolveUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user not found: %w", err)
	}
	return userID, nil
}
