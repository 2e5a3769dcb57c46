package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitChallengeAPI/internal/types/challenge"
	"fitChallengeAPI/internal/types/notification"
	"fitChallengeAPI/utils"
)

// ErrChallengeLimit is returned on join/create attempts once the user already
// has the maximum number of active participations.
var ErrChallengeLimit = errors.New("you can only participate in 2 active challenges at a time")

type ChallengeService struct {
	db       *pgxpool.Pool
	notifier *NotificationService
}

func NewChallengeService(db *pgxpool.Pool, notifier *NotificationService) *ChallengeService {
	return &ChallengeService{db: db, notifier: notifier}
}

func (s *ChallengeService) resolveUserID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user not found: %w", err)
	}
	return userID, nil
}

// GetActiveChallengesForUser returns every challenge the user actively
// participates in, each annotated with a live participant count.
func (s *ChallengeService) GetActiveChallengesForUser(ctx context.Context, clerkID string) ([]*challenge.Challenge, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	query := `
	SELECT
		c.id, c.title, c.description, c.type, c.creator_id,
		c.start_date, c.end_date, c.open_ended, c.private, c.status,
		c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM challenge_participants cp2
		 WHERE cp2.challenge_id = c.id AND cp2.status = 'active') AS participant_count
	FROM challenges c
	INNER JOIN challenge_participants cp ON cp.challenge_id = c.id
	WHERE cp.user_id = $1
		AND cp.status = 'active'
		AND c.status = 'active'
	ORDER BY c.start_date DESC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*challenge.Challenge
	for rows.Next() {
		c := &challenge.Challenge{}
		err := rows.Scan(
			&c.ID,
			&c.Title,
			&c.Description,
			&c.Type,
			&c.CreatorID,
			&c.StartDate,
			&c.EndDate,
			&c.OpenEnded,
			&c.Private,
			&c.Status,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.ParticipantCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}

	return challenges, nil
}

// CanJoinNewChallenge reports whether another active participation is allowed.
// Every join, rejoin and create path checks this before touching rows.
func (s *ChallengeService) CanJoinNewChallenge(ctx context.Context, clerkID string) (*challenge.JoinEligibility, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	var activeCount int
	query := `
	SELECT COUNT(*)
	FROM challenge_participants cp
	INNER JOIN challenges c ON c.id = cp.challenge_id
	WHERE cp.user_id = $1 AND cp.status = 'active' AND c.status = 'active'
	`
	if err := s.db.QueryRow(ctx, query, userID).Scan(&activeCount); err != nil {
		return nil, fmt.Errorf("failed to count active participations: %w", err)
	}

	return &challenge.JoinEligibility{
		CanJoin:     activeCount < challenge.MaxActiveChallenges,
		ActiveCount: activeCount,
	}, nil
}

// CreateChallenge inserts the challenge with its rule rows and joins the
// creator, all in one transaction. Rule thresholds authored in miles are
// normalized to kilometers here so evaluation always compares km to km.
func (s *ChallengeService) CreateChallenge(ctx context.Context, clerkID string, req *challenge.CreateChallengeRequest) (*challenge.Challenge, error) {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	if req.Title == "" {
		return nil, fmt.Errorf("challenge title is required")
	}
	switch req.Type {
	case challenge.TypeRace, challenge.TypeSurvival, challenge.TypeStreak, challenge.TypeCustom:
	default:
		return nil, fmt.Errorf("invalid challenge type: %s", req.Type)
	}
	for i, rule := range req.Rules {
		if rule.ActivityType == "" {
			return nil, fmt.Errorf("rule %d: activity type is required", i)
		}
		if !rule.Metric.Valid() {
			return nil, fmt.Errorf("rule %d: invalid metric: %s", i, rule.Metric)
		}
		if !rule.Timeframe.Valid() {
			return nil, fmt.Errorf("rule %d: invalid timeframe: %s", i, rule.Timeframe)
		}
		if rule.TargetValue <= 0 {
			return nil, fmt.Errorf("rule %d: target value must be positive", i)
		}
		if rule.Points < 0 {
			return nil, fmt.Errorf("rule %d: points must not be negative", i)
		}
	}

	eligibility, err := s.CanJoinNewChallenge(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	if !eligibility.CanJoin {
		return nil, ErrChallengeLimit
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c := &challenge.Challenge{}
	query := `
	INSERT INTO challenges (id, title, description, type, creator_id, start_date, end_date, open_ended, private, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'active', NOW(), NOW())
	RETURNING id, title, description, type, creator_id, start_date, end_date, open_ended, private, status, created_at, updated_at
	`
	err = tx.QueryRow(
		ctx,
		query,
		uuid.New(),
		req.Title,
		req.Description,
		req.Type,
		userID,
		req.StartDate,
		req.EndDate,
		req.OpenEnded,
		req.Private,
	).Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Type,
		&c.CreatorID,
		&c.StartDate,
		&c.EndDate,
		&c.OpenEnded,
		&c.Private,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	for _, rule := range req.Rules {
		metric := rule.Metric
		target := rule.TargetValue
		if metric == challenge.MetricDistanceMiles {
			metric = challenge.MetricDistanceKm
			target = utils.MilesToKm(target)
		}

		_, err = tx.Exec(
			ctx,
			`INSERT INTO challenge_activities (id, challenge_id, activity_type, metric, target_value, points, timeframe, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
			uuid.New(), c.ID, rule.ActivityType, metric, target, rule.Points, rule.Timeframe,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create challenge rule: %w", err)
		}
	}

	_, err = tx.Exec(
		ctx,
		`INSERT INTO challenge_participants (id, challenge_id, user_id, status, total_points, joined_at)
		 VALUES ($1, $2, $3, 'active', 0, NOW())`,
		uuid.New(), c.ID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to join creator to challenge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit challenge: %w", err)
	}

	c.ParticipantCount = 1
	return c, nil
}

func (s *ChallengeService) GetChallenge(ctx context.Context, challengeID uuid.UUID) (*challenge.Challenge, error) {
	query := `
	SELECT
		c.id, c.title, c.description, c.type, c.creator_id,
		c.start_date, c.end_date, c.open_ended, c.private, c.status,
		c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM challenge_participants cp
		 WHERE cp.challenge_id = c.id AND cp.status = 'active') AS participant_count
	FROM challenges c
	WHERE c.id = $1
	`

	c := &challenge.Challenge{}
	err := s.db.QueryRow(ctx, query, challengeID).Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Type,
		&c.CreatorID,
		&c.StartDate,
		&c.EndDate,
		&c.OpenEnded,
		&c.Private,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.ParticipantCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("challenge not found")
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	return c, nil
}

// JoinChallenge adds the user as an active participant, or reactivates a
// previous participation keeping its accumulated points. Both paths go
// through the participation cap.
func (s *ChallengeService) JoinChallenge(ctx context.Context, clerkID string, challengeID uuid.UUID) error {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	c, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	if c.Status != challenge.StatusActive {
		return fmt.Errorf("challenge is no longer active")
	}

	eligibility, err := s.CanJoinNewChallenge(ctx, clerkID)
	if err != nil {
		return err
	}
	if !eligibility.CanJoin {
		return ErrChallengeLimit
	}

	var existingID uuid.UUID
	var existingStatus challenge.ParticipantStatus
	err = s.db.QueryRow(
		ctx,
		`SELECT id, status FROM challenge_participants WHERE challenge_id = $1 AND user_id = $2`,
		challengeID, userID,
	).Scan(&existingID, &existingStatus)

	switch {
	case err == nil && existingStatus == challenge.ParticipantActive:
		return fmt.Errorf("already participating in this challenge")
	case err == nil:
		// Rejoin keeps the old row and its points.
		_, err = s.db.Exec(
			ctx,
			`UPDATE challenge_participants
			 SET status = 'active', rejoined_at = NOW(), left_at = NULL
			 WHERE id = $1`,
			existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to rejoin challenge: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		_, err = s.db.Exec(
			ctx,
			`INSERT INTO challenge_participants (id, challenge_id, user_id, status, total_points, joined_at)
			 VALUES ($1, $2, $3, 'active', 0, NOW())`,
			uuid.New(), challengeID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to join challenge: %w", err)
		}
	default:
		return fmt.Errorf("failed to check participation: %w", err)
	}

	if s.notifier != nil {
		go utils.NotifyChallengeParticipants(s.db, s.notifier, challengeID, userID,
			notification.TypeChallengeJoined, "New participant",
			fmt.Sprintf("Someone joined %s", c.Title),
			map[string]any{"challenge_id": challengeID.String()})
	}

	return nil
}

func (s *ChallengeService) LeaveChallenge(ctx context.Context, clerkID string, challengeID uuid.UUID) error {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(
		ctx,
		`UPDATE challenge_participants
		 SET status = 'left', left_at = NOW()
		 WHERE challenge_id = $1 AND user_id = $2 AND status = 'active'`,
		challengeID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to leave challenge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no active participation found for this challenge")
	}

	return nil
}

// UpdateChallengeStatus archives a challenge (completed or cancelled). Only
// the creator may transition status.
func (s *ChallengeService) UpdateChallengeStatus(ctx context.Context, clerkID string, challengeID uuid.UUID, status challenge.Status) error {
	userID, err := s.resolveUserID(ctx, clerkID)
	if err != nil {
		return err
	}

	if status != challenge.StatusCompleted && status != challenge.StatusCancelled {
		return fmt.Errorf("invalid status transition: %s", status)
	}

	result, err := s.db.Exec(
		ctx,
		`UPDATE challenges SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND creator_id = $3 AND status = 'active'`,
		status, challengeID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update challenge status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("challenge not found or not owned by user")
	}

	if status == challenge.StatusCompleted && s.notifier != nil {
		go utils.NotifyChallengeParticipants(s.db, s.notifier, challengeID, userID,
			notification.TypeChallengeCompleted, "Challenge completed",
			"A challenge you participate in has finished", nil)
	}

	return nil
}

// GetParticipants lists a challenge's participants ordered by points. For
// race challenges map_position mirrors the points rank.
func (s *ChallengeService) GetParticipants(ctx context.Context, challengeID uuid.UUID) ([]*challenge.Participant, error) {
	query := `
	SELECT
		cp.id, cp.challenge_id, cp.user_id, u.username, u.image_url,
		cp.status, cp.total_points, cp.current_streak, cp.longest_streak,
		cp.map_position, cp.joined_at, cp.left_at, cp.rejoined_at, cp.last_activity_date
	FROM challenge_participants cp
	INNER JOIN users u ON u.id = cp.user_id
	WHERE cp.challenge_id = $1 AND cp.status = 'active'
	ORDER BY cp.total_points DESC, cp.joined_at ASC
	`

	rows, err := s.db.Query(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch participants: %w", err)
	}
	defer rows.Close()

	var participants []*challenge.Participant
	for rows.Next() {
		p := &challenge.Participant{}
		err := rows.Scan(
			&p.ID,
			&p.ChallengeID,
			&p.UserID,
			&p.Username,
			&p.ImageURL,
			&p.Status,
			&p.TotalPoints,
			&p.CurrentStreak,
			&p.LongestStreak,
			&p.MapPosition,
			&p.JoinedAt,
			&p.LeftAt,
			&p.RejoinedAt,
			&p.LastActivityDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return participants, nil
}

// RecomputeMapPositions rewrites race-board positions from the current points
// ranking. Called after awarding points on a race challenge.
func (s *ChallengeService) RecomputeMapPositions(ctx context.Context, challengeID uuid.UUID) error {
	query := `
	UPDATE challenge_participants cp
	SET map_position = ranked.rank
	FROM (
		SELECT id, RANK() OVER (ORDER BY total_points DESC, joined_at ASC) AS rank
		FROM challenge_participants
		WHERE challenge_id = $1 AND status = 'active'
	) ranked
	WHERE cp.id = ranked.id
	`
	if _, err := s.db.Exec(ctx, query, challengeID); err != nil {
		return fmt.Errorf("failed to recompute map positions: %w", err)
	}
	return nil
}

// GetRulesForActivity returns a challenge's rule rows for one activity type.
// Matching is an exact string comparison; the recorder's canonicalization is
// the only normalization that ever happens.
func (s *ChallengeService) GetRulesForActivity(ctx context.Context, challengeID uuid.UUID, activityType string) ([]*challenge.Rule, error) {
	query := `
	SELECT id, challenge_id, activity_type, metric, target_value, points, timeframe, created_at
	FROM challenge_activities
	WHERE challenge_id = $1 AND activity_type = $2
	`

	rows, err := s.db.Query(ctx, query, challengeID, activityType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch challenge rules: %w", err)
	}
	defer rows.Close()

	var rules []*challenge.Rule
	for rows.Next() {
		r := &challenge.Rule{}
		err := rows.Scan(&r.ID, &r.ChallengeID, &r.ActivityType, &r.Metric, &r.TargetValue, &r.Points, &r.Timeframe, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge rule: %w", err)
		}
		rules = append(rules, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenge rules: %w", err)
	}

	return rules, nil
}

// GetChallengeActivityTypes flattens the rule rows of all the user's active
// challenges into one deduplicated list per activity type. Challenges created
// under the old schema have no rule rows; for those the legacy
// rules.allowed_activities JSON is parsed instead.
func (s *ChallengeService) GetChallengeActivityTypes(ctx context.Context, clerkID string) ([]*challenge.ActivityTypeMetrics, error) {
	challenges, err := s.GetActiveChallengesForUser(ctx, clerkID)
	if err != nil {
		return nil, err
	}

	byType := make(map[string]*challenge.ActivityTypeMetrics)
	var order []string
	seen := make(map[string]bool)

	add := func(activityType string, src challenge.MetricSource) {
		key := activityType + "|" + string(src.Metric) + "|" + src.ChallengeID.String()
		if seen[key] {
			return
		}
		seen[key] = true

		entry, ok := byType[activityType]
		if !ok {
			entry = &challenge.ActivityTypeMetrics{ActivityType: activityType}
			byType[activityType] = entry
			order = append(order, activityType)
		}
		entry.Metrics = append(entry.Metrics, src)
	}

	for _, c := range challenges {
		rules, err := s.getAllRules(ctx, c.ID)
		if err != nil {
			log.Printf("GetChallengeActivityTypes: failed to fetch rules for challenge %s: %v", c.ID, err)
			continue
		}

		if len(rules) == 0 {
			// Legacy challenge without normalized rule rows.
			legacy, err := s.getLegacyRules(ctx, c.ID)
			if err != nil {
				log.Printf("GetChallengeActivityTypes: legacy rules parse failed for challenge %s: %v", c.ID, err)
				continue
			}
			for _, la := range legacy {
				add(la.ActivityType, challenge.MetricSource{
					Metric:         la.Metric,
					ChallengeID:    c.ID,
					ChallengeTitle: c.Title,
				})
			}
			continue
		}

		for _, r := range rules {
			add(r.ActivityType, challenge.MetricSource{
				Metric:         r.Metric,
				ChallengeID:    c.ID,
				ChallengeTitle: c.Title,
			})
		}
	}

	result := make([]*challenge.ActivityTypeMetrics, 0, len(order))
	for _, t := range order {
		result = append(result, byType[t])
	}
	return result, nil
}

func (s *ChallengeService) getAllRules(ctx context.Context, challengeID uuid.UUID) ([]*challenge.Rule, error) {
	query := `
	SELECT id, challenge_id, activity_type, metric, target_value, points, timeframe, created_at
	FROM challenge_activities
	WHERE challenge_id = $1
	ORDER BY activity_type, created_at
	`

	rows, err := s.db.Query(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch challenge rules: %w", err)
	}
	defer rows.Close()

	var rules []*challenge.Rule
	for rows.Next() {
		r := &challenge.Rule{}
		err := rows.Scan(&r.ID, &r.ChallengeID, &r.ActivityType, &r.Metric, &r.TargetValue, &r.Points, &r.Timeframe, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// LegacyAllowedActivity is one entry of the pre-normalization rules JSON
// (rules -> allowed_activities).
type LegacyAllowedActivity struct {
	ActivityType string
	Metric       challenge.Metric
}

func (s *ChallengeService) getLegacyRules(ctx context.Context, challengeID uuid.UUID) ([]LegacyAllowedActivity, error) {
	var rulesJSON map[string]any
	err := s.db.QueryRow(ctx, `SELECT rules FROM challenges WHERE id = $1`, challengeID).Scan(&rulesJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch legacy rules: %w", err)
	}

	return ParseLegacyAllowedActivities(rulesJSON), nil
}

// ParseLegacyAllowedActivities extracts activity/metric pairs from the old
// free-form rules JSON. Entries without a metric default to count, matching
// how old challenges scored.
func ParseLegacyAllowedActivities(rules map[string]any) []LegacyAllowedActivity {
	if rules == nil {
		return nil
	}

	raw, ok := rules["allowed_activities"].([]any)
	if !ok {
		return nil
	}

	var result []LegacyAllowedActivity
	for _, entry := range raw {
		switch v := entry.(type) {
		case string:
			result = append(result, LegacyAllowedActivity{ActivityType: v, Metric: challenge.MetricCount})
		case map[string]any:
			activityType, _ := v["activityType"].(string)
			if activityType == "" {
				activityType, _ = v["activity_type"].(string)
			}
			if activityType == "" {
				continue
			}
			metricStr, _ := v["metric"].(string)
			metric := challenge.Metric(metricStr)
			if !metric.Valid() {
				metric = challenge.MetricCount
			}
			result = append(result, LegacyAllowedActivity{ActivityType: activityType, Metric: metric})
		}
	}
	return result
}

// ParticipantForUser fetches the user's participation row in one challenge.
func (s *ChallengeService) ParticipantForUser(ctx context.Context, challengeID, userID uuid.UUID) (*challenge.Participant, error) {
	query := `
	SELECT id, challenge_id, user_id, status, total_points, current_streak, longest_streak,
	       map_position, joined_at, left_at, rejoined_at, last_activity_date
	FROM challenge_participants
	WHERE challenge_id = $1 AND user_id = $2
	`

	p := &challenge.Participant{}
	err := s.db.QueryRow(ctx, query, challengeID, userID).Scan(
		&p.ID,
		&p.ChallengeID,
		&p.UserID,
		&p.Status,
		&p.TotalPoints,
		&p.CurrentStreak,
		&p.LongestStreak,
		&p.MapPosition,
		&p.JoinedAt,
		&p.LeftAt,
		&p.RejoinedAt,
		&p.LastActivityDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("participant not found")
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return p, nil
}
