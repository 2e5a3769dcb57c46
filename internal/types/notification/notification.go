package notification

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeChallengeJoined    Type = "challenge_joined"
	TypePointsAwarded      Type = "points_awarded"
	TypeChallengeCompleted Type = "challenge_completed"
	TypeFriendAdded        Type = "friend_added"
)

type Notification struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	UserID    uuid.UUID      `json:"userId" db:"user_id"`
	Type      Type           `json:"type" db:"type"`
	Title     string         `json:"title" db:"title"`
	Body      string         `json:"body" db:"body"`
	Data      map[string]any `json:"data,omitempty" db:"data"`
	ActorID   *uuid.UUID     `json:"actorId,omitempty" db:"actor_id"`
	ReadAt    *time.Time     `json:"readAt,omitempty" db:"read_at"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}

type CreateNotificationRequest struct {
	UserID  uuid.UUID
	Type    Type
	Title   string
	Body    string
	Data    map[string]any
	ActorID *uuid.UUID
}
