package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/AdamBeresnev/rack-ladder/internal/bracket"
	"github.com/AdamBeresnev/rack-ladder/internal/challenge"
	"github.com/AdamBeresnev/rack-ladder/internal/httputil"
	"github.com/AdamBeresnev/rack-ladder/internal/middleware"
	"github.com/AdamBeresnev/rack-ladder/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed %s", service.ErrInvalidInput, name)
	}
	return id, nil
}

func listLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", service.ErrInvalidInput)
	}
	return min(n, maxListLimit), nil
}

// expectedVersion takes the token from the body, falling back to If-Match.
// Zero means the caller did not send one.
func expectedVersion(r *http.Request, body int64) (int64, error) {
	if body != 0 {
		return body, nil
	}
	raw := strings.Trim(r.Header.Get("If-Match"), `"`)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: If-Match must carry a version number", service.ErrInvalidInput)
	}
	return v, nil
}

func actingPlayer(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.GetPlayerIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return id, ok
}

func writeChallenge(w http.ResponseWriter, status int, c *challenge.Challenge) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(c.Version, 10)))
	httputil.WriteJSON(w, status, c)
}

// Players

type registerPlayerRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

func (app *application) registerPlayer(w http.ResponseWriter, r *http.Request) {
	var req registerPlayerRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, "Invalid player", err)
		return
	}

	p, err := app.players.Register(r.Context(), req.Name)
	if err != nil {
		httputil.Error(w, "Failed to register player", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (app *application) listPlayers(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		httputil.Error(w, "Invalid limit", err)
		return
	}
	players, err := app.players.ListPlayers(r.Context(), limit)
	if err != nil {
		httputil.Error(w, "Failed to list players", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, players)
}

func (app *application) getPlayer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, "Invalid player ID", err)
		return
	}
	p, err := app.players.GetPlayer(r.Context(), id)
	if err != nil {
		httputil.Error(w, "Failed to get player", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (app *application) ratingHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, "Invalid player ID", err)
		return
	}
	history, err := app.players.RatingHistory(r.Context(), id)
	if err != nil {
		httputil.Error(w, "Failed to get rating history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, history)
}

func (app *application) listPlayerChallenges(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, "Invalid player ID", err)
		return
	}
	limit, err := listLimit(r)
	if err != nil {
		httputil.Error(w, "Invalid limit", err)
		return
	}

	status := challenge.Status(r.URL.Query().Get("status"))
	switch status {
	case "", challenge.StatusPending, challenge.StatusAccepted, challenge.StatusInProgress,
		challenge.StatusCompleted, challenge.StatusDeclined, challenge.StatusExpired:
	default:
		httputil.Error(w, "Invalid status", fmt.Errorf("%w: unknown status %q", service.ErrInvalidInput, status))
		return
	}

	challenges, err := app.challenges.ListPlayerChallenges(r.Context(), id, status, limit)
	if err != nil {
		httputil.Error(w, "Failed to list challenges", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, challenges)
}

// Challenges

type createChallengeRequest struct {
	OpponentID         uuid.UUID  `json:"opponent_id" validate:"required"`
	Stake              int64      `json:"stake" validate:"gte=0"`
	RaceTo             int        `json:"race_to" validate:"required_without=BracketMatchID,gte=0"`
	ChallengerHandicap int        `json:"challenger_handicap" validate:"gte=0"`
	OpponentHandicap   int        `json:"opponent_handicap" validate:"gte=0"`
	BracketMatchID     *uuid.UUID `json:"bracket_match_id"`
}

func (app *application) createChallenge(w http.ResponseWriter, r *http.Request) {
	challengerID, ok := actingPlayer(w, r)
	if !ok {
		return
	}

	var req createChallengeRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, "Invalid challenge", err)
		return
	}

	c, err := app.challenges.Create(r.Context(), service.CreateChallengeInput{
		ChallengerID:       challengerID,
		OpponentID:         req.OpponentID,
		Stake:              req.Stake,
		RaceTo:             req.RaceTo,
		ChallengerHandicap: req.ChallengerHandicap,
		OpponentHandicap:   req.OpponentHandicap,
		BracketMatchID:     req.BracketMatchID,
	})
	if err != nil {
		httputil.Error(w, "Failed to create challenge", err)
		return
	}
	writeChallenge(w, http.StatusCreated, c)
}

func (app *application) getChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, "Invalid challenge ID", err)
		return
	}
	c, err := app.challenges.GetChallenge(r.Context(), id)
	if err != nil {
		httputil.Error(w, "Failed to get challenge", err)
		return
	}
	writeChallenge(w, http.StatusOK, c)
}

type versionRequest struct {
	Version int64 `json:"version" validate:"gte=0"`
}

// decodeTransition reads the shared inputs of accept, decline and confirm.
// An empty body is allowed so the version can come from If-Match alone.
func decodeTransition(w http.ResponseWriter, r *http.Request) (id, playerID uuid.UUID, version int64, ok bool) {
	playerID, ok = actingPlayer(w, r)
	if !ok {
		return
	}
	ok = false

	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, "Invalid challenge ID", err)
		return
	}

	var req versionRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(w, r, &req); err != nil {
			httputil.Error(w, "Invalid request", err)
			return
		}
	}
	version, err = expectedVersion(r, req.Version)
	if err != nil {
		httputil.Error(w, "Invalid version", err)
		return
	}
	return id, playerID, version, true
}

func (app *application) acceptChallenge(w http.ResponseWriter, r *http.Request) {
	id, playerID, version, ok := decodeTransition(w, r)
	if !ok {
		return
	}
	c, err := app.challenges.Accept(r.Context(), id, playerID, version)
	if err != nil {
		httputil.Error(w, "Failed to accept challenge", err)
		return
	}
	writeChallenge(w, http.StatusOK, c)
}

func (app *application) declineChallenge(w http.ResponseWriter, r *http.Request) {
	id, playerID, version, ok := decodeTransition(w, r)
	if !ok {
		return
	}
	c, err := app.challenges.Decline(r.Context(), id, playerID, version)
	if err != nil {
		httputil.Error(w, "Failed to decline challenge", err)
		return
	}
	writeChallenge(w, http.StatusOK, c)
}

func (app *application) confirmResult(w http.ResponseWriter, r *http.Request) {
	id, playerID, version, ok := decodeTransition(w, r)
	if !ok {
		return
	}
	c, err := app.challenges.ConfirmResult(r.Context(), id, playerID, version)
	if err != nil {
		httputil.Error(w, "Failed to confirm result", err)
		return
	}
	writeChallenge(w, http.StatusOK, c)
}

type reportRackRequest struct {
	RackNumber      int       `json:"rack_number" validate:"required,gte=1"`
	WinnerID        uuid.UUID `json:"winner_id" validate:"required"`
	ChallengerTotal int       `json:"challenger_total" validate:"gte=0"`
	OpponentTotal   int       `json:"opponent_total" validate:"gte=0"`
	Version         int64     `json:"version" validate:"gte=0"`
}

func (app *application) reportRack(w http.ResponseWriter, r *http.Request) {
	playerID, ok := actingPlayer(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, "Invalid challenge ID", err)
		return
	}

	var req reportRackRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, "Invalid rack report", err)
		return
	}
	version, err := expectedVersion(r, req.Version)
	if err != nil {
		httputil.Error(w, "Invalid version", err)
		return
	}

	c, err := app.challenges.ReportRack(r.Context(), service.RackReport{
		ChallengeID:     id,
		PlayerID:        playerID,
		RackNumber:      req.RackNumber,
		WinnerID:        req.WinnerID,
		ChallengerTotal: req.ChallengerTotal,
		OpponentTotal:   req.OpponentTotal,
		ExpectedVersion: version,
	})
	if err != nil {
		httputil.Error(w, "Failed to report rack", err)
		return
	}
	writeChallenge(w, http.StatusOK, c)
}

// Tournaments

type createTournamentRequest struct {
	Name      string                 `json:"name" validate:"required,max=100"`
	PlayerIDs []uuid.UUID            `json:"player_ids" validate:"required,min=1,dive,required"`
	Type      bracket.TournamentType `json:"type" validate:"omitempty,oneof=single double"`
	Seeding   bracket.Seeding        `json:"seeding" validate:"omitempty,oneof=compact padded"`
	Stake     int64                  `json:"stake" validate:"gte=0"`
	RaceTo    int                    `json:"race_to" validate:"gte=0"`
}

func (app *application) createTournament(w http.ResponseWriter, r *http.Request) {
	var req createTournamentRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, "Invalid tournament", err)
		return
	}

	data, err := app.brackets.CreateTournament(r.Context(), service.CreateTournamentInput{
		Name:      strings.TrimSpace(req.Name),
		PlayerIDs: req.PlayerIDs,
		Type:      req.Type,
		Seeding:   req.Seeding,
		Stake:     req.Stake,
		RaceTo:    req.RaceTo,
	})
	if err != nil {
		httputil.Error(w, "Failed to create tournament", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, data)
}

func (app *application) listTournaments(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		httputil.Error(w, "Invalid limit", err)
		return
	}
	tournaments, err := app.brackets.ListTournaments(r.Context(), limit)
	if err != nil {
		httputil.Error(w, "Failed to list tournaments", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tournaments)
}

// getTournament accepts either the tournament ID or its slug.
func (app *application) getTournament(w http.ResponseWriter, r *http.Request) {
	data, err := app.brackets.GetBracket(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httputil.Error(w, "Failed to get tournament", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, data)
}

type advanceMatchRequest struct {
	WinnerID uuid.UUID `json:"winner_id" validate:"required"`
	LoserID  uuid.UUID `json:"loser_id" validate:"required"`
}

// advanceMatch lets one of the two seated players record the result.
func (app *application) advanceMatch(w http.ResponseWriter, r *http.Request) {
	playerID, ok := actingPlayer(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		httputil.Error(w, "Invalid match ID", err)
		return
	}

	var req advanceMatchRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, "Invalid advance", err)
		return
	}

	m, err := app.brackets.ReportMatch(r.Context(), playerID, id, req.WinnerID, req.LoserID)
	if err != nil {
		httputil.Error(w, "Failed to advance match", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}
