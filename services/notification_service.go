package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitChallengeAPI/internal/types/notification"
)

// NotificationService stores in-app notification records. Delivery to devices
// is not handled here; clients poll the list and unread count.
type NotificationService struct {
	db *pgxpool.Pool
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) CreateNotification(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error) {
	dataJSON, _ := json.Marshal(req.Data)

	query := `
	INSERT INTO notifications (id, user_id, type, title, body, data, actor_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	RETURNING id, user_id, type, title, body, actor_id, read_at, created_at
	`

	notif := &notification.Notification{Data: req.Data}
	err := s.db.QueryRow(
		ctx,
		query,
		uuid.New(),
		req.UserID,
		req.Type,
		req.Title,
		req.Body,
		dataJSON,
		req.ActorID,
	).Scan(
		&notif.ID,
		&notif.UserID,
		&notif.Type,
		&notif.Title,
		&notif.Body,
		&notif.ActorID,
		&notif.ReadAt,
		&notif.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return notif, nil
}

func (s *NotificationService) GetNotifications(ctx context.Context, clerkID string, limit int) ([]*notification.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
	SELECT n.id, n.user_id, n.type, n.title, n.body, n.data, n.actor_id, n.read_at, n.created_at
	FROM notifications n
	INNER JOIN users u ON u.id = n.user_id
	WHERE u.clerk_id = $1
	ORDER BY n.created_at DESC
	LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, clerkID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		n := &notification.Notification{}
		var dataJSON []byte
		err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &dataJSON, &n.ActorID, &n.ReadAt, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if len(dataJSON) > 0 {
			json.Unmarshal(dataJSON, &n.Data)
		}
		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, clerkID string) (int, error) {
	var count int
	query := `
	SELECT COUNT(*)
	FROM notifications n
	INNER JOIN users u ON u.id = n.user_id
	WHERE u.clerk_id = $1 AND n.read_at IS NULL
	`
	if err := s.db.QueryRow(ctx, query, clerkID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, clerkID string, notificationID uuid.UUID) error {
	query := `
	UPDATE notifications n
	SET read_at = NOW()
	FROM users u
	WHERE n.id = $1 AND n.user_id = u.id AND u.clerk_id = $2 AND n.read_at IS NULL
	`

	result, err := s.db.Exec(ctx, query, notificationID, clerkID)
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification not found")
	}

	return nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, clerkID string) error {
	query := `
	UPDATE notifications n
	SET read_at = NOW()
	FROM users u
	WHERE n.user_id = u.id AND u.clerk_id = $1 AND n.read_at IS NULL
	`

	if _, err := s.db.Exec(ctx, query, clerkID); err != nil {
		return fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return nil
}
