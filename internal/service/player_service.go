package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AdamBeresnev/rack-ladder/internal/player"
	"github.com/AdamBeresnev/rack-ladder/internal/rating"
	"github.com/AdamBeresnev/rack-ladder/internal/store"
	"github.com/google/uuid"
)

type PlayerService struct {
	stores        *store.Stores
	ranks         *rating.Classifier
	initialRating int
	logger        *slog.Logger
}

func NewPlayerService(stores *store.Stores, ranks *rating.Classifier, initialRating int, logger *slog.Logger) *PlayerService {
	return &PlayerService{stores: stores, ranks: ranks, initialRating: initialRating, logger: logger}
}

// Register creates a player at the initial rating. Names are unique.
func (s *PlayerService) Register(ctx context.Context, name string) (*player.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: player name is required", ErrInvalidInput)
	}

	p := &player.Player{
		ID:        uuid.New(),
		Name:      name,
		Rating:    s.initialRating,
		Tier:      s.ranks.Classify(s.initialRating).Name,
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.stores.Players.CreatePlayer(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to register %q: %w", name, err)
	}

	s.logger.InfoContext(ctx, "Player registered",
		slog.String("player_id", p.ID.String()),
		slog.String("name", p.Name),
		slog.String("tier", p.Tier),
	)
	return p, nil
}

func (s *PlayerService) GetPlayer(ctx context.Context, id uuid.UUID) (*player.Player, error) {
	return s.stores.Players.GetPlayer(ctx, id)
}

// ListPlayers returns the ladder, highest rating first.
func (s *PlayerService) ListPlayers(ctx context.Context, limit int) ([]player.Player, error) {
	return s.stores.Players.ListPlayers(ctx, limit)
}

func (s *PlayerService) RatingHistory(ctx context.Context, id uuid.UUID) ([]player.RatingChange, error) {
	if _, err := s.stores.Players.GetPlayer(ctx, id); err != nil {
		return nil, err
	}
	return s.stores.Players.GetRatingChanges(ctx, id)
}
