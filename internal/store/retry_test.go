package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"booking-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails GetService with a transient error a fixed number of times.
type flakyStore struct {
	*Memory
	failures int
	calls    int
	err      error
}

func (f *flakyStore) GetService(ctx context.Context, id int64) (*models.Service, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.Memory.GetService(ctx, id)
}

func testPolicy() RetryPolicy {
	return RetryPolicy{Retries: 2, Base: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestRetryingRecoversFromTransientFailure(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	id, err := mem.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)

	flaky := &flakyStore{Memory: mem, failures: 2, err: Transient(errors.New("timeout"))}
	s := WithRetry(flaky, testPolicy(), nil)

	svc, err := s.GetService(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Haircut", svc.Name)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingSurfacesStoreUnavailable(t *testing.T) {
	flaky := &flakyStore{Memory: NewMemory(), failures: 100, err: Transient(errors.New("timeout"))}
	s := WithRetry(flaky, testPolicy(), nil)

	_, err := s.GetService(context.Background(), 1)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingDoesNotRetryPermanentErrors(t *testing.T) {
	flaky := &flakyStore{Memory: NewMemory(), failures: 100, err: ErrNotFound}
	s := WithRetry(flaky, testPolicy(), nil)

	_, err := s.GetService(context.Background(), 1)
	require.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, flaky.calls)
}

func TestRetryingPassesThroughWrites(t *testing.T) {
	ctx := context.Background()
	s := WithRetry(NewMemory(), testPolicy(), nil)

	_, err := s.AddUser(ctx, models.User{ID: 1})
	require.NoError(t, err)
	svc, err := s.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)
	id, err := s.CreateAppointment(ctx, 1, svc, "2025-04-20", "14:00")
	require.NoError(t, err)
	require.NoError(t, s.CancelAppointment(ctx, id, 1))

	stats, err := s.GetStatistics(ctx, models.Period{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalBookings)
}

func TestRetryingReportsUnavailableWhenContextEndsDuringBackoff(t *testing.T) {
	flaky := &flakyStore{Memory: NewMemory(), failures: 100, err: Transient(errors.New("timeout"))}
	s := WithRetry(flaky, RetryPolicy{Retries: 10, Base: time.Second, Max: time.Second}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.GetService(ctx, 1)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, flaky.calls)
}
