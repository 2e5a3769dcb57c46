package challenge

import (
	"time"

	"github.com/google/uuid"
)

type ChallengeType string

const (
	TypeRace     ChallengeType = "race"
	TypeSurvival ChallengeType = "survival"
	TypeStreak   ChallengeType = "streak"
	TypeCustom   ChallengeType = "custom"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Metric string

const (
	MetricSteps         Metric = "steps"
	MetricDistanceKm    Metric = "distance_km"
	MetricDistanceMiles Metric = "distance_miles"
	MetricTime          Metric = "time"
	MetricCalories      Metric = "calories"
	MetricCount         Metric = "count"
)

func (m Metric) Valid() bool {
	switch m {
	case MetricSteps, MetricDistanceKm, MetricDistanceMiles, MetricTime, MetricCalories, MetricCount:
		return true
	}
	return false
}

type Timeframe string

const (
	TimeframeDay  Timeframe = "day"
	TimeframeWeek Timeframe = "week"
)

func (t Timeframe) Valid() bool {
	return t == TimeframeDay || t == TimeframeWeek
}

type ParticipantStatus string

const (
	ParticipantActive ParticipantStatus = "active"
	ParticipantLeft   ParticipantStatus = "left"
)

// MaxActiveChallenges is the participation cap enforced on every join and rejoin.
const MaxActiveChallenges = 2

type Challenge struct {
	ID               uuid.UUID      `json:"id" db:"id"`
	Title            string         `json:"title" db:"title"`
	Description      string         `json:"description" db:"description"`
	Type             ChallengeType  `json:"type" db:"type"`
	CreatorID        uuid.UUID      `json:"creatorId" db:"creator_id"`
	StartDate        time.Time      `json:"startDate" db:"start_date"`
	EndDate          *time.Time     `json:"endDate,omitempty" db:"end_date"`
	OpenEnded        bool           `json:"openEnded" db:"open_ended"`
	Private          bool           `json:"private" db:"private"`
	Status           Status         `json:"status" db:"status"`
	Rules            map[string]any `json:"rules,omitempty" db:"rules"`
	ParticipantCount int            `json:"participantCount" db:"participant_count"`
	CreatedAt        time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time      `json:"updatedAt" db:"updated_at"`
}

// Rule is one scoring row of a challenge: meet the target for the
// activity/metric pair within the timeframe and earn the points.
type Rule struct {
	ID           uuid.UUID `json:"id" db:"id"`
	ChallengeID  uuid.UUID `json:"challengeId" db:"challenge_id"`
	ActivityType string    `json:"activityType" db:"activity_type"`
	Metric       Metric    `json:"metric" db:"metric"`
	TargetValue  float64   `json:"targetValue" db:"target_value"`
	Points       int       `json:"points" db:"points"`
	Timeframe    Timeframe `json:"timeframe" db:"timeframe"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

type Participant struct {
	ID               uuid.UUID         `json:"id" db:"id"`
	ChallengeID      uuid.UUID         `json:"challengeId" db:"challenge_id"`
	UserID           uuid.UUID         `json:"userId" db:"user_id"`
	Username         string            `json:"username,omitempty" db:"username"`
	ImageURL         *string           `json:"imageUrl,omitempty" db:"image_url"`
	Status           ParticipantStatus `json:"status" db:"status"`
	TotalPoints      int               `json:"totalPoints" db:"total_points"`
	CurrentStreak    int               `json:"currentStreak" db:"current_streak"`
	LongestStreak    int               `json:"longestStreak" db:"longest_streak"`
	MapPosition      int               `json:"mapPosition" db:"map_position"`
	JoinedAt         time.Time         `json:"joinedAt" db:"joined_at"`
	LeftAt           *time.Time        `json:"leftAt,omitempty" db:"left_at"`
	RejoinedAt       *time.Time        `json:"rejoinedAt,omitempty" db:"rejoined_at"`
	LastActivityDate *time.Time        `json:"lastActivityDate,omitempty" db:"last_activity_date"`
}

type CreateChallengeRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Type        ChallengeType `json:"type"`
	StartDate   time.Time     `json:"startDate"`
	EndDate     *time.Time    `json:"endDate"`
	OpenEnded   bool          `json:"openEnded"`
	Private     bool          `json:"private"`
	Rules       []RuleInput   `json:"rules"`
}

type RuleInput struct {
	ActivityType string    `json:"activityType"`
	Metric       Metric    `json:"metric"`
	TargetValue  float64   `json:"targetValue"`
	Points       int       `json:"points"`
	Timeframe    Timeframe `json:"timeframe"`
}

// JoinEligibility is the result of the participation-cap check.
type JoinEligibility struct {
	CanJoin     bool `json:"canJoin"`
	ActiveCount int  `json:"activeCount"`
}

// ActivityTypeMetrics maps one activity type to the challenge metrics that
// currently apply to it, used by the client to decide which inputs to show.
type ActivityTypeMetrics struct {
	ActivityType string         `json:"activityType"`
	Metrics      []MetricSource `json:"metrics"`
}

type MetricSource struct {
	Metric         Metric    `json:"metric"`
	ChallengeID    uuid.UUID `json:"challengeId"`
	ChallengeTitle string    `json:"challengeTitle"`
}
