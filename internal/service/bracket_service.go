package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AdamBeresnev/rack-ladder/internal/bracket"
	"github.com/AdamBeresnev/rack-ladder/internal/challenge"
	"github.com/AdamBeresnev/rack-ladder/internal/metrics"
	"github.com/AdamBeresnev/rack-ladder/internal/player"
	"github.com/AdamBeresnev/rack-ladder/internal/store"
	"github.com/AdamBeresnev/rack-ladder/internal/utils"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BracketOptions are the defaults applied to tournaments that leave a field
// unset.
type BracketOptions struct {
	Type       bracket.TournamentType
	Seeding    bracket.Seeding
	RaceTo     int
	MaxRetries int
	Now        func() time.Time
	// Nil uses the global provider
	TracerProvider trace.TracerProvider
}

type BracketService struct {
	stores  *store.Stores
	opts    BracketOptions
	logger  *slog.Logger
	metrics *metrics.Metrics
	retry   retrier
	tracer  trace.Tracer
}

func NewBracketService(stores *store.Stores, opts BracketOptions, logger *slog.Logger, m *metrics.Metrics) *BracketService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BracketService{
		stores:  stores,
		opts:    opts,
		logger:  logger,
		metrics: m,
		retry:   newRetrier(opts.MaxRetries, m),
		tracer:  newTracer(opts.TracerProvider),
	}
}

type CreateTournamentInput struct {
	Name      string
	PlayerIDs []uuid.UUID
	Type      bracket.TournamentType
	Seeding   bracket.Seeding
	Stake     int64
	RaceTo    int
}

type TournamentData struct {
	Tournament  *bracket.Tournament `json:"tournament"`
	Entries     []bracket.Entry     `json:"entries"`
	Matches     []bracket.Match     `json:"matches"`
	NextMatchID *uuid.UUID          `json:"next_match_id,omitempty"`
}

func (s *BracketService) now() time.Time {
	return s.opts.Now().UTC()
}

func (s *BracketService) applyDefaults(in *CreateTournamentInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Type == "" {
		in.Type = s.opts.Type
	}
	if in.Seeding == "" {
		in.Seeding = s.opts.Seeding
	}
	if in.RaceTo == 0 {
		in.RaceTo = s.opts.RaceTo
	}

	switch {
	case in.Name == "":
		return fmt.Errorf("%w: tournament name is required", ErrInvalidInput)
	case len(in.PlayerIDs) == 0:
		return fmt.Errorf("%w: a tournament needs at least one player", ErrInvalidInput)
	case in.Type != bracket.SingleElimination && in.Type != bracket.DoubleElimination:
		return fmt.Errorf("%w: unknown tournament type %q", ErrInvalidInput, in.Type)
	case in.Seeding != bracket.SeedingCompact && in.Seeding != bracket.SeedingPadded:
		return fmt.Errorf("%w: unknown seeding %q", ErrInvalidInput, in.Seeding)
	case in.Stake < 0:
		return fmt.Errorf("%w: stake must not be negative", ErrInvalidInput)
	case in.RaceTo < 1:
		return fmt.Errorf("%w: race must be to at least 1 rack", ErrInvalidInput)
	}

	seen := make(map[uuid.UUID]bool, len(in.PlayerIDs))
	for _, id := range in.PlayerIDs {
		if seen[id] {
			return fmt.Errorf("%w: player %s entered twice", ErrInvalidInput, id)
		}
		seen[id] = true
	}
	return nil
}

// CreateTournament seeds the players by rating, builds every match and
// stores the whole tournament in one transaction. A lone player is champion
// straight away.
func (s *BracketService) CreateTournament(ctx context.Context, in CreateTournamentInput) (*TournamentData, error) {
	ctx, span := s.tracer.Start(ctx, "BracketService.CreateTournament")
	defer span.End()

	if err := s.applyDefaults(&in); err != nil {
		return nil, spanError(span, err)
	}

	players := make([]*player.Player, 0, len(in.PlayerIDs))
	for _, id := range in.PlayerIDs {
		p, err := s.stores.Players.GetPlayer(ctx, id)
		if err != nil {
			return nil, spanError(span, fmt.Errorf("player %s: %w", id, err))
		}
		players = append(players, p)
	}
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Rating != players[j].Rating {
			return players[i].Rating > players[j].Rating
		}
		return players[i].Name < players[j].Name
	})

	slugValue, err := s.uniqueSlug(ctx, in.Name)
	if err != nil {
		return nil, spanError(span, err)
	}

	now := s.now()
	tournament := &bracket.Tournament{
		ID:        uuid.New(),
		Name:      in.Name,
		Slug:      slugValue,
		Status:    bracket.TournamentStarted,
		Type:      in.Type,
		Seeding:   in.Seeding,
		Stake:     in.Stake,
		RaceTo:    in.RaceTo,
		Version:   1,
		CreatedAt: now,
	}

	entries := make([]bracket.Entry, len(players))
	for i, p := range players {
		entries[i] = bracket.Entry{
			ID:           uuid.New(),
			TournamentID: tournament.ID,
			PlayerID:     p.ID,
			Seed:         i + 1,
		}
	}

	if len(entries) == 1 {
		tournament.Status = bracket.TournamentCompleted
		tournament.ChampionID = utils.Ptr(entries[0].PlayerID)
	}

	matches, err := bracket.Generate(tournament, entries)
	if err != nil {
		return nil, spanError(span, err)
	}
	for i := range matches {
		matches[i].CreatedAt = now
	}

	err = store.RunInTx(ctx, s.stores.DB, func(tx *sqlx.Tx) error {
		if err := s.stores.Tournaments.CreateTournament(ctx, tx, tournament); err != nil {
			return err
		}
		if err := s.stores.Tournaments.CreateEntries(ctx, tx, entries); err != nil {
			return err
		}
		return s.stores.Tournaments.CreateMatches(ctx, tx, matches)
	})
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to create tournament: %w", err))
	}

	span.SetAttributes(
		attribute.String("tournament.id", tournament.ID.String()),
		attribute.Int("tournament.players", len(entries)),
		attribute.Int("tournament.matches", len(matches)),
	)
	s.logger.InfoContext(ctx, "Tournament created",
		slog.String("tournament_id", tournament.ID.String()),
		slog.String("slug", tournament.Slug),
		slog.String("type", string(tournament.Type)),
		slog.Int("players", len(entries)),
		slog.Int("matches", len(matches)),
	)

	return newTournamentData(tournament, entries, matches), nil
}

func (s *BracketService) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "tournament"
	}

	_, err := s.stores.Tournaments.GetTournamentBySlug(ctx, base)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return base, nil
	case err != nil:
		return "", err
	}
	return base + "-" + uuid.NewString()[:8], nil
}

func newTournamentData(t *bracket.Tournament, entries []bracket.Entry, matches []bracket.Match) *TournamentData {
	var nextMatchID *uuid.UUID
	for _, m := range matches {
		if m.Status == bracket.MatchReady {
			nextMatchID = utils.Ptr(m.ID)
			break
		}
	}

	return &TournamentData{
		Tournament:  t,
		Entries:     entries,
		Matches:     matches,
		NextMatchID: nextMatchID,
	}
}

// GetBracket loads a tournament by ID or slug with its entries and matches.
func (s *BracketService) GetBracket(ctx context.Context, ref string) (*TournamentData, error) {
	var (
		tournament *bracket.Tournament
		err        error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		tournament, err = s.stores.Tournaments.GetTournament(ctx, id)
	} else {
		tournament, err = s.stores.Tournaments.GetTournamentBySlug(ctx, ref)
	}
	if err != nil {
		return nil, err
	}

	entries, err := s.stores.Tournaments.GetEntries(ctx, tournament.ID)
	if err != nil {
		return nil, err
	}

	matches, err := s.stores.Tournaments.GetMatches(ctx, tournament.ID)
	if err != nil {
		return nil, err
	}

	return newTournamentData(tournament, entries, matches), nil
}

func (s *BracketService) ListTournaments(ctx context.Context, limit int) ([]bracket.Tournament, error) {
	return s.stores.Tournaments.ListTournaments(ctx, limit)
}

// AdvanceMatch records a result for a match that is not decided by a
// challenge.
func (s *BracketService) AdvanceMatch(ctx context.Context, matchID, winnerID, loserID uuid.UUID) (*bracket.Match, error) {
	ctx, span := s.tracer.Start(ctx, "BracketService.AdvanceMatch")
	defer span.End()

	m, err := s.advance(ctx, matchID, winnerID, loserID, nil)
	return m, spanError(span, err)
}

// ReportMatch is AdvanceMatch on behalf of playerID, who must be one of the
// two players named in the result. Advance then checks both are seated.
func (s *BracketService) ReportMatch(ctx context.Context, playerID, matchID, winnerID, loserID uuid.UUID) (*bracket.Match, error) {
	if playerID != winnerID && playerID != loserID {
		return nil, fmt.Errorf("%w: player %s cannot report a match they are not playing", bracket.ErrNotInMatch, playerID)
	}
	return s.AdvanceMatch(ctx, matchID, winnerID, loserID)
}

// AdvanceFromChallenge feeds a completed challenge into its bracket match.
// A match that already has its result counts as done.
func (s *BracketService) AdvanceFromChallenge(ctx context.Context, c *challenge.Challenge) error {
	if c.BracketMatchID == nil || c.WinnerID == nil {
		return nil
	}

	_, err := s.advance(ctx, *c.BracketMatchID, *c.WinnerID, c.LoserID(), &c.ID)
	if errors.Is(err, bracket.ErrAlreadyAdvanced) {
		return nil
	}
	return err
}

// advance applies one result to the stored bracket. When challengeID is set
// the match must be linked to that challenge; otherwise it must be unlinked.
func (s *BracketService) advance(ctx context.Context, matchID, winnerID, loserID uuid.UUID, challengeID *uuid.UUID) (*bracket.Match, error) {
	var result bracket.Match

	err := s.retry.do(ctx, "advance_match", func() error {
		return store.RunInTx(ctx, s.stores.DB, func(tx *sqlx.Tx) error {
			m, err := s.stores.Tournaments.GetMatchTx(ctx, tx, matchID)
			if errors.Is(err, store.ErrNotFound) {
				return bracket.ErrUnknownMatch
			}
			if err != nil {
				return err
			}
			if m.Resolved() {
				return bracket.ErrAlreadyAdvanced
			}
			if !utils.SameValue(m.ChallengeID, challengeID) {
				return fmt.Errorf("%w: match %s is decided by another challenge", bracket.ErrAlreadyLinked, m.ID)
			}

			t, err := s.stores.Tournaments.GetTournamentTx(ctx, tx, m.TournamentID)
			if err != nil {
				return err
			}
			matches, err := s.stores.Tournaments.GetMatchesTx(ctx, tx, t.ID)
			if err != nil {
				return err
			}

			br := bracket.NewBracket(t, matches)
			if err := br.Advance(matchID, winnerID, loserID); err != nil {
				return err
			}

			for _, changed := range br.Changed() {
				if err := s.stores.Tournaments.UpdateMatchTx(ctx, tx, &changed); err != nil {
					return err
				}
				if changed.ID == matchID {
					result = changed
				}
			}
			if br.TournamentChanged() {
				if err := s.stores.Tournaments.UpdateTournamentTx(ctx, tx, t); err != nil {
					return err
				}
			}
			return nil
		})
	})

	switch {
	case err == nil:
		s.metrics.BracketAdvance("advanced")
		s.logger.InfoContext(ctx, "Match advanced",
			slog.String("match_id", matchID.String()),
			slog.String("winner_id", winnerID.String()),
			slog.String("loser_id", loserID.String()),
		)
		return &result, nil
	case errors.Is(err, bracket.ErrAlreadyAdvanced):
		s.metrics.BracketAdvance("duplicate")
	default:
		s.metrics.BracketAdvance("rejected")
	}
	return nil, err
}

// linkTx attaches a new challenge to a ready bracket match inside the
// challenge's create transaction.
func (s *BracketService) linkTx(ctx context.Context, tx *sqlx.Tx, matchID, challengeID, playerA, playerB uuid.UUID) (*bracket.Match, *bracket.Tournament, error) {
	m, err := s.stores.Tournaments.GetMatchTx(ctx, tx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, bracket.ErrUnknownMatch
	}
	if err != nil {
		return nil, nil, err
	}

	t, err := s.stores.Tournaments.GetTournamentTx(ctx, tx, m.TournamentID)
	if err != nil {
		return nil, nil, err
	}

	br := bracket.NewBracket(t, []bracket.Match{*m})
	if err := br.LinkChallenge(matchID, challengeID, playerA, playerB); err != nil {
		return nil, nil, err
	}

	linked, _ := br.Match(matchID)
	if err := s.stores.Tournaments.UpdateMatchTx(ctx, tx, linked); err != nil {
		return nil, nil, err
	}
	return linked, t, nil
}

// unlinkTx frees a match whose challenge was declined or expired so a new
// challenge can be issued for it.
func (s *BracketService) unlinkTx(ctx context.Context, tx *sqlx.Tx, matchID, challengeID uuid.UUID) error {
	m, err := s.stores.Tournaments.GetMatchTx(ctx, tx, matchID)
	if err != nil {
		return err
	}
	if m.ChallengeID == nil || *m.ChallengeID != challengeID || m.Resolved() {
		return nil
	}

	m.ChallengeID = nil
	return s.stores.Tournaments.UpdateMatchTx(ctx, tx, m)
}
