package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	_, err := m.AddUser(context.Background(), models.User{ID: 100, DisplayName: "U1"})
	require.NoError(t, err)
	return m
}

func TestMemoryAddUserDefaultsToClient(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	u, err := m.GetUser(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.RoleClient, u.Role)

	_, err = m.AddUser(ctx, models.User{ID: 100})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = m.GetUser(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, m.SetUserRole(ctx, 5, models.RoleAdmin), ErrNotFound)
	assert.ErrorIs(t, m.SetUserRole(ctx, 100, "king"), ErrInvalidInput)
}

func TestMemoryListUsersByRole(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	for _, id := range []int64{7, 3, 5} {
		_, err := m.AddUser(ctx, models.User{ID: id, Role: models.RoleAdmin})
		require.NoError(t, err)
	}

	admins, err := m.ListUsersByRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 3)
	assert.Equal(t, []int64{3, 5, 7}, []int64{admins[0].ID, admins[1].ID, admins[2].ID})
}

func TestMemoryServiceIDsNeverReused(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	first, err := m.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)
	require.NoError(t, m.DeleteService(ctx, first))
	second, err := m.AddService(ctx, "Shave", "", 10)
	require.NoError(t, err)

	assert.Greater(t, second, first)
	assert.ErrorIs(t, m.DeleteService(ctx, first), ErrNotFound)

	_, err = m.AddService(ctx, "Bad", "", -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMemoryListServicesKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	for _, name := range []string{"c", "a", "b"} {
		_, err := m.AddService(ctx, name, "", 1)
		require.NoError(t, err)
	}
	require.NoError(t, m.DeleteService(ctx, 2))

	services, err := m.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "c", services[0].Name)
	assert.Equal(t, "b", services[1].Name)
}

func TestMemoryConcurrentAllocationHasNoDuplicates(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	svc, err := m.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)

	const n = 200
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		apptIDs    = make(map[int64]struct{})
		serviceIDs = make(map[int64]struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id, err := m.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
			assert.NoError(t, err)
			mu.Lock()
			apptIDs[id] = struct{}{}
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			id, err := m.AddService(ctx, "x", "", 1)
			assert.NoError(t, err)
			mu.Lock()
			serviceIDs[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, apptIDs, n)
	assert.Len(t, serviceIDs, n)

	history, err := m.GetHistory(ctx, models.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, history, n)
}

func TestMemoryCreateAppointmentIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	svc, err := m.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)

	boom := errors.New("disk on fire")
	m.beforeHistory = func() error { return boom }

	_, err = m.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
	require.ErrorIs(t, err, boom)

	appts, err := m.GetAllAppointments(ctx)
	require.NoError(t, err)
	assert.Empty(t, appts)
	history, err := m.GetHistory(ctx, models.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, history)

	// The failed attempt must not burn an id either.
	m.beforeHistory = nil
	id, err := m.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestMemoryCreateAppointmentRequiresUserAndService(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	svc, err := m.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)

	_, err = m.CreateAppointment(ctx, 999, svc, "d", "t")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.CreateAppointment(ctx, 100, 42, "d", "t")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryHistoryKeepsPriceAtBookingTime(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	svc, err := m.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)
	_, err = m.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
	require.NoError(t, err)
	require.NoError(t, m.DeleteService(ctx, svc))

	history, err := m.GetHistory(ctx, models.HistoryFilter{UserID: 100})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 20.0, history[0].Amount)
	assert.Equal(t, svc, history[0].ServiceID)
}

func TestMemoryCancelAppointment(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	svc, err := m.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)
	id, err := m.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
	require.NoError(t, err)

	assert.ErrorIs(t, m.CancelAppointment(ctx, id, 555), ErrForbidden)
	assert.ErrorIs(t, m.CancelAppointment(ctx, 77, AnyUser), ErrNotFound)

	require.NoError(t, m.CancelAppointment(ctx, id, 100))
	require.NoError(t, m.CancelAppointment(ctx, id, 100))

	a, err := m.GetAppointment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, a.Status)
}

func TestMemoryStatistics(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	s1, err := m.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)
	s2, err := m.AddService(ctx, "Shave", "", 15)
	require.NoError(t, err)

	for _, svc := range []int64{s1, s2, s1, s1} {
		_, err := m.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
		require.NoError(t, err)
	}

	stats, err := m.GetStatistics(ctx, models.Period{})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalBookings)
	assert.Equal(t, 75.0, stats.TotalRevenue)
	assert.Equal(t, map[int64]int{1: 3, 2: 1}, stats.PopularityByService)
	assert.Equal(t, int64(1), stats.MostPopularServiceID)
}

func TestMemoryHistoryPeriodIsInclusive(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	base := time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
	clock := base
	m.now = func() time.Time { return clock }

	svc, err := m.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		clock = base.Add(time.Duration(i) * time.Hour)
		_, err := m.CreateAppointment(ctx, 100, svc, "d", "t")
		require.NoError(t, err)
	}

	got, err := m.GetHistory(ctx, models.HistoryFilter{Period: models.Period{
		From: base.Add(time.Hour),
		To:   base.Add(2 * time.Hour),
	}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	stats, err := m.GetStatistics(ctx, models.Period{To: base})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalBookings)
}

func TestBuildStatisticsTieBreaksOnLowestID(t *testing.T) {
	stats := BuildStatistics([]models.HistoryEntry{
		{ServiceID: 9, Amount: 1},
		{ServiceID: 4, Amount: 1},
		{ServiceID: 9, Amount: 1},
		{ServiceID: 4, Amount: 1},
	})
	assert.Equal(t, int64(4), stats.MostPopularServiceID)

	empty := BuildStatistics(nil)
	assert.Zero(t, empty.MostPopularServiceID)
	assert.Zero(t, empty.TotalBookings)
}
