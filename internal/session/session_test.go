package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsIdleForUnknownUser(t *testing.T) {
	m := NewMemory()
	s, err := m.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), s.UserID)
	assert.Equal(t, Idle, s.State)
	assert.NotNil(t, s.Form)
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	s := New(1)
	s.Begin(AwaitingDate)
	s.Form["service_id"] = "1"
	require.NoError(t, m.Save(ctx, s))

	got, err := m.Get(ctx, 1)
	require.NoError(t, err)
	got.Form["service_id"] = "2"
	got.State = AwaitingTime

	again, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, AwaitingDate, again.State)
	assert.Equal(t, "1", again.Form["service_id"])
}

func TestSaveIdleDropsSession(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	s := New(1)
	s.Begin(AwaitingServiceName)
	require.NoError(t, m.Save(ctx, s))
	assert.Equal(t, 1, m.Len())

	s.Reset()
	require.NoError(t, m.Save(ctx, s))
	assert.Zero(t, m.Len())
}

func TestExpire(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	old := New(1)
	old.Begin(AwaitingDate)
	require.NoError(t, m.Save(ctx, old))

	clock = clock.Add(time.Hour)
	fresh := New(2)
	fresh.Begin(AwaitingDate)
	require.NoError(t, m.Save(ctx, fresh))

	assert.Equal(t, 1, m.Expire(30*time.Minute))

	s, err := m.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Idle, s.State)
	s, err = m.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, AwaitingDate, s.State)
}
