package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careslot/scheduling/internal/appointment"
)

type stubAdvisor struct {
	rec   *Recommendation
	err   error
	calls int
}

func (a *stubAdvisor) Recommend(context.Context, uuid.UUID, uuid.UUID, time.Time) (*Recommendation, error) {
	a.calls++
	return a.rec, a.err
}

func TestChain_AdvisoryBooksRecommendedTime(t *testing.T) {
	f := newFixture(t, nil)
	advisor := &stubAdvisor{rec: &Recommendation{StartMinute: 14 * 60, Confidence: 0.9}}
	chain := NewChain(f.svc, advisor, 0.75, zerolog.Nop())

	appt, err := chain.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)
	assert.Equal(t, 14*60, appt.StartMinute, "high-confidence recommendation wins")
	assert.Equal(t, 1, advisor.calls)
}

func TestChain_LowConfidenceFallsBackToRequestedTime(t *testing.T) {
	f := newFixture(t, nil)
	advisor := &stubAdvisor{rec: &Recommendation{StartMinute: 14 * 60, Confidence: 0.3}}
	chain := NewChain(f.svc, advisor, 0.75, zerolog.Nop())

	appt, err := chain.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)
	assert.Equal(t, 10*60, appt.StartMinute)
}

func TestChain_AdvisorErrorFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	advisor := &stubAdvisor{err: errors.New("advisor offline")}
	chain := NewChain(f.svc, advisor, 0.75, zerolog.Nop())

	appt, err := chain.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)
	assert.Equal(t, 10*60, appt.StartMinute)
}

func TestChain_ConflictingRecommendationFallsBack(t *testing.T) {
	f := newFixture(t, nil)

	// Occupy the time the advisor will recommend.
	_, err := f.svc.Book(context.Background(), f.bookingAt(14*60))
	require.NoError(t, err)

	advisor := &stubAdvisor{rec: &Recommendation{StartMinute: 14 * 60, Confidence: 0.95}}
	chain := NewChain(f.svc, advisor, 0.75, zerolog.Nop())

	appt, err := chain.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)
	assert.Equal(t, 10*60, appt.StartMinute, "rejected recommendation must not fail the booking")
}

func TestChain_DeterministicConflictIsFinal(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)

	chain := NewChain(f.svc, nil, 0, zerolog.Nop())
	_, err = chain.Book(context.Background(), f.bookingAt(10*60))

	var conflict *appointment.ConflictError
	require.True(t, errors.As(err, &conflict))
}

func TestChain_NoAdvisorIsDeterministicOnly(t *testing.T) {
	f := newFixture(t, nil)
	chain := NewChain(f.svc, nil, 0.75, zerolog.Nop())

	appt, err := chain.Book(context.Background(), f.bookingAt(10*60))
	require.NoError(t, err)
	assert.Equal(t, 10*60, appt.StartMinute)
}
