package boltdb

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"booking-bot/internal/models"
	"booking-bot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bot.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.AddUser(context.Background(), models.User{ID: 100, DisplayName: "U1"})
	require.NoError(t, err)
	return s
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, err := s.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.RoleClient, u.Role)
	assert.Equal(t, "U1", u.DisplayName)

	_, err = s.AddUser(ctx, models.User{ID: 100})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	_, err = s.GetUser(ctx, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SetUserRole(ctx, 100, models.RoleAdmin))
	admins, err := s.ListUsersByRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, int64(100), admins[0].ID)
}

func TestServiceIDsNeverReused(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.AddService(ctx, "Haircut", "Classic", 20)
	require.NoError(t, err)
	require.NoError(t, s.DeleteService(ctx, first))
	second, err := s.AddService(ctx, "Shave", "", 10)
	require.NoError(t, err)
	assert.Greater(t, second, first)

	_, err = s.GetService(ctx, first)
	assert.ErrorIs(t, err, store.ErrNotFound)

	services, err := s.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "Shave", services[0].Name)
}

func TestConcurrentAppointmentsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc, err := s.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)

	const n = 50
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
			assert.NoError(t, err)
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, ids, n)

	history, err := s.GetHistory(ctx, models.HistoryFilter{UserID: 100})
	require.NoError(t, err)
	assert.Len(t, history, n)
}

func TestCreateAppointmentRollsBackOnHistoryFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc, err := s.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)

	boom := errors.New("disk on fire")
	s.beforeHistory = func() error { return boom }
	_, err = s.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
	require.ErrorIs(t, err, boom)

	appts, err := s.GetAllAppointments(ctx)
	require.NoError(t, err)
	assert.Empty(t, appts)
	history, err := s.GetHistory(ctx, models.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, history)

	// The sequence bump was rolled back with the rest of the transaction.
	s.beforeHistory = nil
	id, err := s.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestCancelAppointment(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc, err := s.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)
	id, err := s.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
	require.NoError(t, err)

	assert.ErrorIs(t, s.CancelAppointment(ctx, id, 7), store.ErrForbidden)
	assert.ErrorIs(t, s.CancelAppointment(ctx, 99, store.AnyUser), store.ErrNotFound)
	require.NoError(t, s.CancelAppointment(ctx, id, store.AnyUser))
	require.NoError(t, s.CancelAppointment(ctx, id, 100))

	a, err := s.GetAppointment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, a.Status)

	mine, err := s.GetAppointmentsByUser(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestStatisticsSurviveServiceDeletion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s1, err := s.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)
	s2, err := s.AddService(ctx, "Shave", "", 15)
	require.NoError(t, err)
	for _, svc := range []int64{s1, s2, s1, s1} {
		_, err := s.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
		require.NoError(t, err)
	}
	require.NoError(t, s.DeleteService(ctx, s1))

	stats, err := s.GetStatistics(ctx, models.Period{})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalBookings)
	assert.Equal(t, 75.0, stats.TotalRevenue)
	assert.Equal(t, map[int64]int{s1: 3, s2: 1}, stats.PopularityByService)
	assert.Equal(t, s1, stats.MostPopularServiceID)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.db")

	s, err := Open(path, time.Second)
	require.NoError(t, err)
	id, err := s.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, time.Second)
	require.NoError(t, err)
	defer s.Close()
	svc, err := s.GetService(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Haircut", svc.Name)
}
