package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitChallengeAPI/internal/leaderboard"
	"fitChallengeAPI/internal/types/notification"
	"fitChallengeAPI/internal/types/user"
)

type UserService struct {
	db       *pgxpool.Pool
	notifier *NotificationService
}

func NewUserService(db *pgxpool.Pool, notifier *NotificationService) *UserService {
	return &UserService{db: db, notifier: notifier}
}

func (s *UserService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	u := &user.User{
		ID:        uuid.New().String(),
		ClerkID:   req.ClerkID,
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	query := `
	INSERT INTO users (id, clerk_id, email, username, first_name, last_name, image_url, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING id, clerk_id, email, username, first_name, last_name, image_url, email_verified, created_at, updated_at
	`

	err := s.db.QueryRow(
		ctx,
		query,
		u.ID,
		u.ClerkID,
		u.Email,
		u.Username,
		u.FirstName,
		u.LastName,
		req.ImageURL,
		u.CreatedAt,
		u.UpdatedAt,
	).Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.EmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	query := `
	SELECT id, clerk_id, email, username, first_name, last_name, image_url, email_verified, created_at, updated_at, total_points
	FROM users
	WHERE clerk_id = $1
	`

	u := &user.User{}
	err := s.db.QueryRow(ctx, query, clerkID).Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.EmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.TotalPoints,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return u, nil
}

func (s *UserService) UpdateProfileByClerkID(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	query := `
	UPDATE users
	SET
		username = COALESCE(NULLIF($2, ''), username),
		first_name = COALESCE(NULLIF($3, ''), first_name),
		last_name = COALESCE(NULLIF($4, ''), last_name),
		image_url = COALESCE(NULLIF($5, ''), image_url),
		updated_at = NOW()
	WHERE clerk_id = $1
	RETURNING id, clerk_id, email, username, first_name, last_name, image_url, email_verified, created_at, updated_at, total_points
	`

	u := &user.User{}
	err := s.db.QueryRow(
		ctx,
		query,
		clerkID,
		req.Username,
		req.FirstName,
		req.LastName,
		req.ImageURL,
	).Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.EmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.TotalPoints,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return u, nil
}

func (s *UserService) DeleteUserByClerkID(ctx context.Context, clerkID string) error {
	result, err := s.db.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

func (s *UserService) UpdateEmailVerification(ctx context.Context, clerkID string, verified bool) error {
	query := `
	UPDATE users
	SET email_verified = $2, updated_at = NOW()
	WHERE clerk_id = $1
	`

	_, err := s.db.Exec(ctx, query, clerkID, verified)
	return err
}

func (s *UserService) GetFriends(ctx context.Context, clerkID string) ([]*user.User, error) {
	query := `
	SELECT DISTINCT
		u.id,
		u.clerk_id,
		u.email,
		u.username,
		u.first_name,
		u.last_name,
		u.image_url,
		u.email_verified,
		u.created_at,
		u.updated_at
	FROM users u
	INNER JOIN friendships f ON (
		(f.user_id = u.id AND f.friend_id = (SELECT id FROM users WHERE clerk_id = $1))
		OR
		(f.friend_id = u.id AND f.user_id = (SELECT id FROM users WHERE clerk_id = $1))
	)
	WHERE f.status = 'accepted'
	AND u.clerk_id != $1
	ORDER BY u.username
	`

	rows, err := s.db.Query(ctx, query, clerkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []*user.User
	for rows.Next() {
		var u user.User
		err := rows.Scan(
			&u.ID,
			&u.ClerkID,
			&u.Email,
			&u.Username,
			&u.FirstName,
			&u.LastName,
			&u.ImageURL,
			&u.EmailVerified,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		friends = append(friends, &u)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return friends, nil
}

func (s *UserService) AddFriend(ctx context.Context, clerkID string, friendClerkID string) error {
	if clerkID == friendClerkID {
		return fmt.Errorf("cannot add yourself as a friend")
	}

	var userID, friendID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", err)
	}

	err = s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, friendClerkID).Scan(&friendID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("friend user not found")
		}
		return fmt.Errorf("failed to look up friend: %w", err)
	}

	var exists bool
	err = s.db.QueryRow(
		ctx,
		`SELECT EXISTS(
			SELECT 1 FROM friendships
			WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
		)`,
		userID, friendID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check friendship: %w", err)
	}
	if exists {
		return fmt.Errorf("friendship already exists")
	}

	_, err = s.db.Exec(
		ctx,
		`INSERT INTO friendships (id, user_id, friend_id, status, created_at)
		 VALUES ($1, $2, $3, 'accepted', NOW())`,
		uuid.New(), userID, friendID,
	)
	if err != nil {
		return fmt.Errorf("failed to add friend: %w", err)
	}

	if s.notifier != nil {
		req := &notification.CreateNotificationRequest{
			UserID:  friendID,
			Type:    notification.TypeFriendAdded,
			Title:   "New friend",
			Body:    "Someone added you as a friend",
			ActorID: &userID,
		}
		if _, err := s.notifier.CreateNotification(ctx, req); err != nil {
			log.Printf("AddFriend: failed to create notification: %v", err)
		}
	}

	return nil
}

func (s *UserService) RemoveFriend(ctx context.Context, clerkID string, friendClerkID string) error {
	query := `
	DELETE FROM friendships
	WHERE (
		(user_id = (SELECT id FROM users WHERE clerk_id = $1) AND friend_id = (SELECT id FROM users WHERE clerk_id = $2))
		OR
		(user_id = (SELECT id FROM users WHERE clerk_id = $2) AND friend_id = (SELECT id FROM users WHERE clerk_id = $1))
	)
	`

	result, err := s.db.Exec(ctx, query, clerkID, friendClerkID)
	if err != nil {
		return fmt.Errorf("failed to remove friend: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("friendship not found")
	}

	return nil
}

func (s *UserService) SearchUsers(ctx context.Context, clerkID string, search string) ([]*user.User, error) {
	search = strings.TrimSpace(search)
	if search == "" {
		return nil, fmt.Errorf("search query is required")
	}

	query := `
	SELECT id, clerk_id, email, username, first_name, last_name, image_url, email_verified, created_at, updated_at
	FROM users
	WHERE clerk_id != $1
		AND (username ILIKE $2 OR first_name ILIKE $2 OR last_name ILIKE $2)
	ORDER BY username
	LIMIT 20
	`

	rows, err := s.db.Query(ctx, query, clerkID, "%"+search+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u := &user.User{}
		err := rows.Scan(
			&u.ID,
			&u.ClerkID,
			&u.Email,
			&u.Username,
			&u.FirstName,
			&u.LastName,
			&u.ImageURL,
			&u.EmailVerified,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

// GetFriendsLeaderboard ranks the user and their friends by lifetime challenge
// points.
func (s *UserService) GetFriendsLeaderboard(ctx context.Context, clerkID string) (*leaderboard.Leaderboard, error) {
	query := `
	WITH me AS (
		SELECT id FROM users WHERE clerk_id = $1
	),
	circle AS (
		SELECT id FROM me
		UNION
		SELECT f.friend_id FROM friendships f, me WHERE f.user_id = me.id AND f.status = 'accepted'
		UNION
		SELECT f.user_id FROM friendships f, me WHERE f.friend_id = me.id AND f.status = 'accepted'
	)
	SELECT u.id, u.username, u.image_url, u.total_points,
	       RANK() OVER (ORDER BY u.total_points DESC) AS rank
	FROM users u
	INNER JOIN circle ON circle.id = u.id
	ORDER BY rank
	`

	rows, err := s.db.Query(ctx, query, clerkID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch friends leaderboard: %w", err)
	}
	defer rows.Close()

	return s.scanLeaderboard(ctx, rows, clerkID)
}

// GetGlobalLeaderboard ranks the top 50 users by lifetime challenge points,
// with the requesting user's position appended even when outside the top.
func (s *UserService) GetGlobalLeaderboard(ctx context.Context, clerkID string) (*leaderboard.Leaderboard, error) {
	query := `
	SELECT u.id, u.username, u.image_url, u.total_points,
	       RANK() OVER (ORDER BY u.total_points DESC) AS rank
	FROM users u
	ORDER BY rank
	LIMIT 50
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch global leaderboard: %w", err)
	}
	defer rows.Close()

	return s.scanLeaderboard(ctx, rows, clerkID)
}

func (s *UserService) scanLeaderboard(ctx context.Context, rows pgx.Rows, clerkID string) (*leaderboard.Leaderboard, error) {
	lb := &leaderboard.Leaderboard{}

	var myID uuid.UUID
	if err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&myID); err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	for rows.Next() {
		e := &leaderboard.LeaderboardEntry{}
		err := rows.Scan(&e.UserID, &e.Username, &e.ImageURL, &e.TotalPoints, &e.Rank)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		lb.Entries = append(lb.Entries, e)
		if e.UserID == myID {
			lb.UserPosition = e
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}

	lb.TotalUsers = len(lb.Entries)

	if lb.UserPosition == nil {
		e := &leaderboard.LeaderboardEntry{}
		query := `
		SELECT id, username, image_url, total_points,
		       (SELECT COUNT(*) + 1 FROM users u2 WHERE u2.total_points > u.total_points) AS rank
		FROM users u
		WHERE u.id = $1
		`
		err := s.db.QueryRow(ctx, query, myID).Scan(&e.UserID, &e.Username, &e.ImageURL, &e.TotalPoints, &e.Rank)
		if err != nil {
			log.Printf("scanLeaderboard: failed to resolve user position: %v", err)
		} else {
			lb.UserPosition = e
		}
	}

	return lb, nil
}
