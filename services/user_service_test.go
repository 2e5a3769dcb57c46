package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitChallengeAPI/tests/helpers"
)

func TestFriendsHandleMissingProfileImage(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notifier := NewNotificationService(pool)
	users := NewUserService(pool, notifier)

	ctx := context.Background()
	_, clerkA := helpers.CreateTestUser(t, pool, "frienda")
	idB, clerkB := helpers.CreateTestUser(t, pool, "friendb")

	require.NoError(t, users.AddFriend(ctx, clerkA, clerkB))

	// Test users carry no avatar; NULL image_url rows must scan cleanly.
	friends, err := users.GetFriends(ctx, clerkA)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, idB.String(), friends[0].ID)
	assert.Nil(t, friends[0].ImageURL)

	results, err := users.SearchUsers(ctx, clerkA, "testuser_friendb")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].ImageURL)
}

func TestAddFriendRejectsSelfAndDuplicates(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notifier := NewNotificationService(pool)
	users := NewUserService(pool, notifier)

	ctx := context.Background()
	_, clerkA := helpers.CreateTestUser(t, pool, "dupa")
	_, clerkB := helpers.CreateTestUser(t, pool, "dupb")

	err := users.AddFriend(ctx, clerkA, clerkA)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yourself")

	require.NoError(t, users.AddFriend(ctx, clerkA, clerkB))

	err = users.AddFriend(ctx, clerkA, clerkB)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// The reverse direction counts as the same friendship.
	err = users.AddFriend(ctx, clerkB, clerkA)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
