package httputil

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AdamBeresnev/rack-ladder/internal/bracket"
	"github.com/AdamBeresnev/rack-ladder/internal/challenge"
	"github.com/AdamBeresnev/rack-ladder/internal/reward"
	"github.com/AdamBeresnev/rack-ladder/internal/service"
	"github.com/AdamBeresnev/rack-ladder/internal/store"
	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the body of every failed request. Retryable tells the
// caller whether sending the same request again can succeed.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Fields    map[string]string `json:"fields,omitempty"`
}

type classification struct {
	status    int
	code      string
	retryable bool
}

// Checked in order; the first match wins.
var taxonomy = []struct {
	err error
	classification
}{
	{store.ErrConcurrentModification, classification{http.StatusConflict, "concurrent_modification", true}},
	{reward.ErrRewardSyncFailed, classification{http.StatusServiceUnavailable, "reward_sync_failed", true}},
	{bracket.ErrUnknownMatch, classification{http.StatusNotFound, "unknown_match", false}},
	{store.ErrNotFound, classification{http.StatusNotFound, "not_found", false}},
	{challenge.ErrExpiredChallenge, classification{http.StatusGone, "expired_challenge", false}},
	{bracket.ErrAlreadyAdvanced, classification{http.StatusConflict, "already_advanced", false}},
	{bracket.ErrAlreadyLinked, classification{http.StatusConflict, "already_linked", false}},
	{store.ErrDuplicate, classification{http.StatusConflict, "duplicate", false}},
	{challenge.ErrOutOfOrderRack, classification{http.StatusUnprocessableEntity, "out_of_order_rack", false}},
	{challenge.ErrInconsistentTotals, classification{http.StatusUnprocessableEntity, "inconsistent_totals", false}},
	{challenge.ErrInvalidTransition, classification{http.StatusUnprocessableEntity, "invalid_transition", false}},
	{bracket.ErrNotInMatch, classification{http.StatusUnprocessableEntity, "not_in_match", false}},
	{bracket.ErrMatchNotReady, classification{http.StatusUnprocessableEntity, "match_not_ready", false}},
	{challenge.ErrInvalidChallenge, classification{http.StatusBadRequest, "invalid_challenge", false}},
	{service.ErrInvalidInput, classification{http.StatusBadRequest, "invalid_input", false}},
}

// Classify maps an engine error to its HTTP status, a stable code and
// whether a retry can help. Unknown errors are internal.
func Classify(err error) (status int, code string, retryable bool) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest, "invalid_input", false
	}
	for _, t := range taxonomy {
		if errors.Is(err, t.err) {
			return t.status, t.code, t.retryable
		}
	}
	return http.StatusInternalServerError, "internal", false
}

// Error writes err as a JSON error response. Internal errors are logged and
// their message is hidden from the caller.
func Error(w http.ResponseWriter, msg string, err error) {
	status, code, retryable := Classify(err)
	if status == http.StatusInternalServerError {
		InternalServerError(w, msg, err)
		return
	}

	slog.Warn("request failed", "message", msg, "code", code, "error", err)
	WriteJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   err.Error(),
		Retryable: retryable,
		Fields:    validationFields(err),
	})
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Code: "internal", Message: "Internal Server Error"})
}

func validationFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = "failed on the '" + fe.Tag() + "' tag"
	}
	return fields
}
