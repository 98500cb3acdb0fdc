package reward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRewardSyncFailed means the external ledger could not be reached or
// refused the credit. The credit stays unsynced and is retried later.
var ErrRewardSyncFailed = errors.New("reward sync failed")

type Ack struct {
	CreditID string `json:"credit_id"`
	// Set when the ledger had already recorded this credit
	Duplicate bool `json:"duplicate"`
}

// Ledger is the external reward ledger. Credit must be idempotent per
// matchID and playerID.
type Ledger interface {
	Credit(ctx context.Context, matchID, playerID uuid.UUID, amount int64) (Ack, error)
}

type HTTPLedger struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewHTTPLedger(baseURL, token string, timeout time.Duration) *HTTPLedger {
	return &HTTPLedger{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type creditRequest struct {
	MatchID  uuid.UUID `json:"match_id"`
	PlayerID uuid.UUID `json:"player_id"`
	Amount   int64     `json:"amount"`
}

func IdempotencyKey(matchID, playerID uuid.UUID) string {
	return matchID.String() + ":" + playerID.String()
}

func (l *HTTPLedger) Credit(ctx context.Context, matchID, playerID uuid.UUID, amount int64) (Ack, error) {
	body, err := json.Marshal(creditRequest{MatchID: matchID, PlayerID: playerID, Amount: amount})
	if err != nil {
		return Ack{}, fmt.Errorf("failed to encode credit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL+"/api/v1/credits", bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", l.Token)
	req.Header.Set("Idempotency-Key", IdempotencyKey(matchID, playerID))

	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: failed to call reward ledger: %v", ErrRewardSyncFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		// Already credited under this key
		return Ack{Duplicate: true}, nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Ack{}, fmt.Errorf("%w: reward ledger returned status %d: %s", ErrRewardSyncFailed, resp.StatusCode, string(msg))
	}

	var ack Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return Ack{}, fmt.Errorf("%w: failed to decode reward ledger response: %v", ErrRewardSyncFailed, err)
	}
	return ack, nil
}

// MemoryLedger keeps credits in process. It backs local runs without a
// ledger service.
type MemoryLedger struct {
	mu      sync.Mutex
	credits map[string]int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{credits: make(map[string]int64)}
}

func (l *MemoryLedger) Credit(ctx context.Context, matchID, playerID uuid.UUID, amount int64) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrRewardSyncFailed, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := IdempotencyKey(matchID, playerID)
	if _, ok := l.credits[key]; ok {
		return Ack{CreditID: key, Duplicate: true}, nil
	}
	l.credits[key] = amount
	return Ack{CreditID: key}, nil
}

// Balance sums everything credited to playerID.
func (l *MemoryLedger) Balance(playerID uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	suffix := ":" + playerID.String()
	var total int64
	for key, amount := range l.credits {
		if strings.HasSuffix(key, suffix) {
			total += amount
		}
	}
	return total
}
