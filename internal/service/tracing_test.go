package service

import (
	"context"
	"testing"

	"github.com/AdamBeresnev/rack-ladder/internal/challenge"
	"github.com/AdamBeresnev/rack-ladder/internal/rating"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestChallengeService_RecordsErrorSpans(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	kTable, err := rating.NewKTable(env.cfg.Rating.KFactors)
	require.NoError(t, err)
	ranks, err := rating.NewClassifier(env.cfg.Rating.RankTiers)
	require.NoError(t, err)
	traced := NewChallengeService(env.stores, rating.NewEngine(kTable), ranks, env.brackets, ChallengeOptions{
		TTL:            env.cfg.Challenge.TTL,
		MaxRetries:     env.cfg.Engine.MaxRetries,
		Now:            env.clock.Now,
		TracerProvider: tp,
	}, env.logger, env.metrics)

	a, b := env.registerPlayer(t), env.registerPlayer(t)
	c, err := traced.Create(ctx, CreateChallengeInput{ChallengerID: a.ID, OpponentID: b.ID, RaceTo: 3})
	require.NoError(t, err)

	// Nothing has been played, so there is no result to confirm
	_, err = traced.ConfirmResult(ctx, c.ID, a.ID, 0)
	require.ErrorIs(t, err, challenge.ErrInvalidTransition)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "ChallengeService.Create", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	confirm := spans[1]
	assert.Equal(t, "ChallengeService.confirm", confirm.Name())
	assert.Equal(t, codes.Error, confirm.Status().Code)
	assert.Contains(t, confirm.Status().Description, "invalid transition")

	var recorded bool
	for _, ev := range confirm.Events() {
		if ev.Name == "exception" {
			recorded = true
		}
	}
	assert.True(t, recorded, "the error is recorded as a span event")
}
