package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forkcast/backend/internal/models"
)

func swipeFixture(t *testing.T) (*SwipeService, *models.User, *models.User, []*models.Recipe) {
	t.Helper()
	db := setupTestDB(t)
	a := createTestUser(t, db, "Alex")
	b := createTestUser(t, db, "Blair")
	recipes := []*models.Recipe{
		createTestRecipe(t, db, "Ramen"),
		createTestRecipe(t, db, "Gnocchi"),
		createTestRecipe(t, db, "Bibimbap"),
	}
	return NewSwipeService(db, testLogger()), a, b, recipes
}

func TestCreateSessionDealsCardsToBothUsers(t *testing.T) {
	svc, a, b, recipes := swipeFixture(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, models.ContextWeekend, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Len(t, session.RecipePool, len(recipes))

	for _, user := range []*models.User{a, b} {
		progress, err := svc.GetProgress(ctx, session.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, len(recipes), progress.TotalCards)
		assert.Zero(t, progress.YourProgress)
	}
}

func TestSessionPairsLongestStandingMembers(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSwipeService(db, testLogger())
	ctx := context.Background()

	base := date(2026, time.January, 1)
	trevor := &models.User{Name: "Trevor", CreatedAt: base}
	emily := &models.User{Name: "Emily", CreatedAt: base.Add(time.Second)}
	guest := &models.User{Name: "Carolina", CreatedAt: base.Add(2 * time.Second)}
	for _, u := range []*models.User{trevor, emily, guest} {
		require.NoError(t, db.Create(u).Error)
	}
	createTestRecipe(t, db, "Ramen")

	session, err := svc.CreateSession(ctx, models.ContextWeekend, nil, 10)
	require.NoError(t, err)

	var cards []models.SwipeCard
	require.NoError(t, db.Where("session_id = ?", session.ID).Find(&cards).Error)
	require.Len(t, cards, 2)
	holders := map[string]bool{}
	for _, card := range cards {
		holders[card.UserID.String()] = true
	}
	assert.True(t, holders[trevor.ID.String()])
	assert.True(t, holders[emily.ID.String()])
	assert.False(t, holders[guest.ID.String()], "newest member sits the session out")
}

func TestCreateSessionEmptyPool(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSwipeService(db, testLogger())

	_, err := svc.CreateSession(context.Background(), models.ContextWeekend, nil, 10)
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestMutualLikeProducesOneMatch(t *testing.T) {
	svc, a, b, recipes := swipeFixture(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, models.ContextWeekend, nil, 10)
	require.NoError(t, err)
	target := recipes[0]

	matched, err := svc.Swipe(ctx, session.ID, target.ID, a.ID, models.DecisionLike)
	require.NoError(t, err)
	assert.False(t, matched, "first like alone is not a match")

	matched, err = svc.Swipe(ctx, session.ID, target.ID, b.ID, models.DecisionSuperlike)
	require.NoError(t, err)
	assert.True(t, matched)

	matches, err := svc.GetMatches(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, target.ID, matches[0].Recipe.ID)
	assert.True(t, matches[0].IsSuperlike)
}

func TestLikeThenDislikeDoesNotMatch(t *testing.T) {
	svc, a, b, recipes := swipeFixture(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, models.ContextWeekend, nil, 10)
	require.NoError(t, err)
	target := recipes[1]

	_, err = svc.Swipe(ctx, session.ID, target.ID, a.ID, models.DecisionLike)
	require.NoError(t, err)
	matched, err := svc.Swipe(ctx, session.ID, target.ID, b.ID, models.DecisionDislike)
	require.NoError(t, err)
	assert.False(t, matched)

	matches, err := svc.GetMatches(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDoubleSwipeRejected(t *testing.T) {
	svc, a, _, recipes := swipeFixture(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, models.ContextWeekend, nil, 10)
	require.NoError(t, err)

	_, err = svc.Swipe(ctx, session.ID, recipes[0].ID, a.ID, models.DecisionLike)
	require.NoError(t, err)
	_, err = svc.Swipe(ctx, session.ID, recipes[0].ID, a.ID, models.DecisionDislike)
	assert.ErrorIs(t, err, ErrAlreadySwiped)
}

func TestInvalidDecisionRejected(t *testing.T) {
	svc, a, _, recipes := swipeFixture(t)

	session, err := svc.CreateSession(context.Background(), models.ContextWeekend, nil, 10)
	require.NoError(t, err)

	_, err = svc.Swipe(context.Background(), session.ID, recipes[0].ID, a.ID, "maybe")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestSessionCompletesWhenAllCardsSwiped(t *testing.T) {
	svc, a, b, recipes := swipeFixture(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, models.ContextWeekend, nil, 10)
	require.NoError(t, err)

	for _, user := range []*models.User{a, b} {
		for _, r := range recipes {
			_, err := svc.Swipe(ctx, session.ID, r.ID, user.ID, models.DecisionSkip)
			require.NoError(t, err)
		}
	}

	progress, err := svc.GetProgress(ctx, session.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, progress.Session.Status)

	_, err = svc.GetNextCard(ctx, session.ID, a.ID)
	assert.ErrorIs(t, err, ErrNoCardsLeft)

	active, err := svc.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestGetNextCardTracksDeckPosition(t *testing.T) {
	svc, a, _, recipes := swipeFixture(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, models.ContextWeekend, nil, 10)
	require.NoError(t, err)

	card, err := svc.GetNextCard(ctx, session.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, card.CardIndex)
	assert.Equal(t, len(recipes), card.TotalCards)

	_, err = svc.Swipe(ctx, session.ID, card.Recipe.ID, a.ID, models.DecisionLike)
	require.NoError(t, err)

	next, err := svc.GetNextCard(ctx, session.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.CardIndex)
	assert.NotEqual(t, card.Recipe.ID, next.Recipe.ID)
}
