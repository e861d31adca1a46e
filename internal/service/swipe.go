package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/forkcast/backend/internal/models"
)

// Swipe service errors, mapped to HTTP statuses by the handlers.
var (
	ErrSessionNotFound = errors.New("swipe session not found")
	ErrCardNotFound    = errors.New("swipe card not found")
	ErrAlreadySwiped   = errors.New("already swiped on this card")
	ErrNoCardsLeft     = errors.New("no more cards to swipe")
	ErrEmptyPool       = errors.New("no recipes available for swiping")
	ErrInvalidDecision = errors.New("invalid swipe decision")
)

// SwipeService runs the two-player recipe picking flow: one session, a shared
// recipe pool, one card per user per recipe, and a match whenever both users
// like the same recipe.
type SwipeService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSwipeService creates a new swipe service.
func NewSwipeService(db *gorm.DB, logger *zap.Logger) *SwipeService {
	return &SwipeService{db: db, logger: logger}
}

// SessionProgress summarizes a swipe session for one participant.
type SessionProgress struct {
	Session         *models.SwipeSession `json:"session"`
	TotalCards      int                  `json:"total_cards"`
	YourProgress    int                  `json:"your_progress"`
	PartnerProgress int                  `json:"partner_progress"`
	MatchCount      int                  `json:"match_count"`
}

// NextCard is the next undecided recipe for a user, with deck position.
type NextCard struct {
	Recipe     *models.Recipe `json:"recipe"`
	CardIndex  int            `json:"card_index"`
	TotalCards int            `json:"total_cards"`
}

// MatchResult is one mutual like, enriched with the recipe and whether either
// user superliked it.
type MatchResult struct {
	Recipe         *models.Recipe `json:"recipe"`
	MatchedAt      time.Time      `json:"matched_at"`
	PlannedForDate *time.Time     `json:"planned_for_date"`
	IsSuperlike    bool           `json:"is_superlike"`
}

// CreateSession builds a recipe pool for the given context and deals a card
// per recipe to each of the two household partners. "weeknight" and "quick"
// limit the pool to recipes at 45 minutes or with unknown time; "date_night"
// limits it to medium and hard recipes.
func (s *SwipeService) CreateSession(ctx context.Context, context_ string, targetDate *time.Time, poolSize int) (*models.SwipeSession, error) {
	if poolSize <= 0 {
		poolSize = 10
	}

	query := s.db.WithContext(ctx).Model(&models.Recipe{}).Where("archived = ?", false)
	switch context_ {
	case models.ContextWeeknight, models.ContextQuick:
		query = query.Where("total_time_min <= ? OR total_time_min IS NULL", 45)
	case models.ContextDateNight:
		query = query.Where("difficulty IN ?", []string{models.DifficultyMedium, models.DifficultyHard})
	}

	var recipes []models.Recipe
	if err := query.Order("RANDOM()").Limit(poolSize).Find(&recipes).Error; err != nil {
		return nil, fmt.Errorf("failed to build recipe pool: %w", err)
	}
	if len(recipes) == 0 {
		return nil, ErrEmptyPool
	}

	pool := make(models.JSONStringArray, 0, len(recipes))
	for _, r := range recipes {
		pool = append(pool, r.ID.String())
	}

	// The swiping pair is the two longest-standing household members. The id
	// tie-break keeps the pair stable when members share a created_at.
	var partners []models.User
	if err := s.db.WithContext(ctx).Order("created_at, id").Limit(2).Find(&partners).Error; err != nil {
		return nil, fmt.Errorf("failed to load partners: %w", err)
	}

	session := &models.SwipeSession{
		Context:    context_,
		Status:     models.SessionStatusActive,
		TargetDate: targetDate,
		RecipePool: pool,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		for _, user := range partners {
			for _, recipe := range recipes {
				card := &models.SwipeCard{
					SessionID: session.ID,
					RecipeID:  recipe.ID,
					UserID:    user.ID,
				}
				if err := tx.Create(card).Error; err != nil {
					return fmt.Errorf("failed to create card: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("swipe session created",
		zap.String("session_id", session.ID.String()),
		zap.String("context", context_),
		zap.Int("pool_size", len(recipes)),
		zap.Int("users", len(partners)))

	return session, nil
}

// GetProgress reports a session's state from one user's point of view.
func (s *SwipeService) GetProgress(ctx context.Context, sessionID, userID uuid.UUID) (*SessionProgress, error) {
	var session models.SwipeSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var yours, partners, matches int64
	err := s.db.WithContext(ctx).Model(&models.SwipeCard{}).
		Where("session_id = ? AND user_id = ? AND decision IS NOT NULL", sessionID, userID).
		Count(&yours).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count swipes: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&models.SwipeCard{}).
		Where("session_id = ? AND user_id <> ? AND decision IS NOT NULL", sessionID, userID).
		Count(&partners).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count partner swipes: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&models.SwipeMatch{}).
		Where("session_id = ?", sessionID).
		Count(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}

	return &SessionProgress{
		Session:         &session,
		TotalCards:      len(session.RecipePool),
		YourProgress:    int(yours),
		PartnerProgress: int(partners),
		MatchCount:      int(matches),
	}, nil
}

// GetNextCard returns the user's next undecided card in deal order.
func (s *SwipeService) GetNextCard(ctx context.Context, sessionID, userID uuid.UUID) (*NextCard, error) {
	var card models.SwipeCard
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ? AND decision IS NULL", sessionID, userID).
		Order("created_at").
		First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoCardsLeft
		}
		return nil, fmt.Errorf("failed to load next card: %w", err)
	}

	var recipe models.Recipe
	err = s.db.WithContext(ctx).
		Preload("Tags").
		First(&recipe, "id = ?", card.RecipeID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe: %w", err)
	}

	var total, swiped int64
	err = s.db.WithContext(ctx).Model(&models.SwipeCard{}).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Count(&total).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&models.SwipeCard{}).
		Where("session_id = ? AND user_id = ? AND decision IS NOT NULL", sessionID, userID).
		Count(&swiped).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count swiped cards: %w", err)
	}

	return &NextCard{
		Recipe:     &recipe,
		CardIndex:  int(swiped) + 1,
		TotalCards: int(total),
	}, nil
}

// Swipe records a decision on a card. When the decision is like or superlike
// and the partner already liked the same recipe, a match is recorded; the
// conflict-ignoring insert keeps concurrent opposing swipes from producing
// two match rows. Once no undecided card remains, the session is completed.
func (s *SwipeService) Swipe(ctx context.Context, sessionID, recipeID, userID uuid.UUID, decision string) (bool, error) {
	switch decision {
	case models.DecisionLike, models.DecisionDislike, models.DecisionSkip, models.DecisionSuperlike:
	default:
		return false, ErrInvalidDecision
	}

	matched := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card models.SwipeCard
		err := tx.Where("session_id = ? AND recipe_id = ? AND user_id = ?", sessionID, recipeID, userID).
			First(&card).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCardNotFound
			}
			return fmt.Errorf("failed to load card: %w", err)
		}
		if card.Decision != nil {
			return ErrAlreadySwiped
		}

		now := time.Now().UTC()
		card.Decision = &decision
		card.SwipedAt = &now
		if err := tx.Save(&card).Error; err != nil {
			return fmt.Errorf("failed to save swipe: %w", err)
		}

		if decision == models.DecisionLike || decision == models.DecisionSuperlike {
			var likes int64
			err := tx.Model(&models.SwipeCard{}).
				Where("session_id = ? AND recipe_id = ? AND user_id <> ?", sessionID, recipeID, userID).
				Where("decision IN ?", []string{models.DecisionLike, models.DecisionSuperlike}).
				Count(&likes).Error
			if err != nil {
				return fmt.Errorf("failed to check partner likes: %w", err)
			}
			if likes > 0 {
				match := &models.SwipeMatch{SessionID: sessionID, RecipeID: recipeID}
				err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "session_id"}, {Name: "recipe_id"}},
					DoNothing: true,
				}).Create(match).Error
				if err != nil {
					return fmt.Errorf("failed to record match: %w", err)
				}
				matched = true
			}
		}

		var remaining int64
		err = tx.Model(&models.SwipeCard{}).
			Where("session_id = ? AND decision IS NULL", sessionID).
			Count(&remaining).Error
		if err != nil {
			return fmt.Errorf("failed to count remaining cards: %w", err)
		}
		if remaining == 0 {
			err := tx.Model(&models.SwipeSession{}).
				Where("id = ?", sessionID).
				Update("status", models.SessionStatusCompleted).Error
			if err != nil {
				return fmt.Errorf("failed to complete session: %w", err)
			}
			s.logger.Info("swipe session completed", zap.String("session_id", sessionID.String()))
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if matched {
		s.logger.Info("swipe match",
			zap.String("session_id", sessionID.String()),
			zap.String("recipe_id", recipeID.String()))
	}
	return matched, nil
}

// GetMatches lists a session's matches in the order they happened.
func (s *SwipeService) GetMatches(ctx context.Context, sessionID uuid.UUID) ([]MatchResult, error) {
	var matches []models.SwipeMatch
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("matched_at").
		Find(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load matches: %w", err)
	}

	results := make([]MatchResult, 0, len(matches))
	for _, m := range matches {
		var recipe models.Recipe
		err := s.db.WithContext(ctx).Preload("Tags").First(&recipe, "id = ?", m.RecipeID).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load matched recipe: %w", err)
		}

		var superlikes int64
		err = s.db.WithContext(ctx).Model(&models.SwipeCard{}).
			Where("session_id = ? AND recipe_id = ? AND decision = ?", sessionID, m.RecipeID, models.DecisionSuperlike).
			Count(&superlikes).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check superlikes: %w", err)
		}

		results = append(results, MatchResult{
			Recipe:         &recipe,
			MatchedAt:      m.MatchedAt,
			PlannedForDate: m.PlannedForDate,
			IsSuperlike:    superlikes > 0,
		})
	}
	return results, nil
}

// ListActiveSessions returns active sessions, newest first.
func (s *SwipeService) ListActiveSessions(ctx context.Context) ([]models.SwipeSession, error) {
	var sessions []models.SwipeSession
	err := s.db.WithContext(ctx).
		Where("status = ?", models.SessionStatusActive).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}
