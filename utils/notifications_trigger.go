package utils

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitChallengeAPI/internal/types/notification"
)

// NotificationCreator is the one method of the notification service this
// package needs, kept as an interface to avoid importing services.
type NotificationCreator interface {
	CreateNotification(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error)
}

// NotifyChallengeParticipants fans a notification out to every active
// participant of a challenge except the actor. Best effort: failures are
// logged and never surfaced to the triggering request.
func NotifyChallengeParticipants(db *pgxpool.Pool, notifier NotificationCreator, challengeID uuid.UUID, actorID uuid.UUID, notifType notification.Type, title, body string, data map[string]any) {
	bgCtx := context.Background()

	query := `
		SELECT user_id FROM challenge_participants
		WHERE challenge_id = $1 AND status = 'active' AND user_id != $2
	`

	rows, err := db.Query(bgCtx, query, challengeID, actorID)
	if err != nil {
		log.Printf("Failed to get participants for notification: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var participantID uuid.UUID
		if err := rows.Scan(&participantID); err != nil {
			continue
		}

		req := &notification.CreateNotificationRequest{
			UserID:  participantID,
			Type:    notifType,
			Title:   title,
			Body:    body,
			Data:    data,
			ActorID: &actorID,
		}

		if _, err := notifier.CreateNotification(bgCtx, req); err != nil {
			log.Printf("Failed to create notification for participant %s: %v", participantID, err)
		}
	}
}
