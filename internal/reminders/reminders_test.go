package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-bot/internal/metrics"
	"booking-bot/internal/models"
	"booking-bot/internal/router"
	"booking-bot/internal/session"
	"booking-bot/internal/store"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu   sync.Mutex
	sent map[int64][]string
	fail map[int64]bool
}

func (s *captureSender) Send(_ context.Context, chatID int64, resp router.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[chatID] {
		return errors.New("blocked by user")
	}
	if s.sent == nil {
		s.sent = make(map[int64][]string)
	}
	s.sent[chatID] = append(s.sent[chatID], resp.Text)
	return nil
}

func seededStore(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	for _, u := range []models.User{
		{ID: 1, Role: models.RoleOwner},
		{ID: 2, Role: models.RoleAdmin},
		{ID: 100, Role: models.RoleClient},
	} {
		_, err := s.AddUser(ctx, u)
		require.NoError(t, err)
	}
	svc, err := s.AddService(ctx, "Haircut", "", 20)
	require.NoError(t, err)

	_, err = s.CreateAppointment(ctx, 100, svc, "2025-04-20", "14:00")
	require.NoError(t, err)
	_, err = s.CreateAppointment(ctx, 100, svc, "2025-04-21", "10:00")
	require.NoError(t, err)
	canceled, err := s.CreateAppointment(ctx, 100, svc, "2025-04-20", "16:00")
	require.NoError(t, err)
	require.NoError(t, s.CancelAppointment(ctx, canceled, 100))
	return s
}

func TestDailyDigestSendsTodaysConfirmedAppointments(t *testing.T) {
	sender := &captureSender{}
	d := &DailyDigest{
		Store:      seededStore(t),
		Sender:     sender,
		DateLayout: "2006-01-02",
		Now:        func() time.Time { return time.Date(2025, 4, 20, 19, 0, 0, 0, time.UTC) },
	}

	require.NoError(t, d.Run(context.Background()))

	want := "Appointments for 2025-04-20:\n#1 Haircut at 14:00, user 100"
	assert.Equal(t, []string{want}, sender.sent[1])
	assert.Equal(t, []string{want}, sender.sent[2])
	assert.Empty(t, sender.sent[100])
}

func TestDailyDigestSkipsQuietDays(t *testing.T) {
	sender := &captureSender{}
	d := &DailyDigest{
		Store:      seededStore(t),
		Sender:     sender,
		DateLayout: "2006-01-02",
		Now:        func() time.Time { return time.Date(2025, 5, 1, 19, 0, 0, 0, time.UTC) },
	}

	require.NoError(t, d.Run(context.Background()))
	assert.Empty(t, sender.sent)
}

func TestDailyDigestReportsFailedDeliveries(t *testing.T) {
	sender := &captureSender{fail: map[int64]bool{2: true}}
	d := &DailyDigest{
		Store:      seededStore(t),
		Sender:     sender,
		DateLayout: "2006-01-02",
		Now:        func() time.Time { return time.Date(2025, 4, 20, 19, 0, 0, 0, time.UTC) },
	}

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, sender.sent[1], 1)
}

type countingPruner struct{ calls int }

func (p *countingPruner) PruneLimiters() int {
	p.calls++
	return 3
}

func TestSweepExpiresSessionsAndPrunesLimiters(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewMemory()
	s := session.New(100)
	s.Begin(session.AwaitingDate)
	require.NoError(t, sessions.Save(ctx, s))

	m := metrics.New()
	pruner := &countingPruner{}
	sweep := &Sweep{Sessions: sessions, TTL: time.Nanosecond, Limiters: pruner, Metrics: m}

	time.Sleep(time.Millisecond)
	require.NoError(t, sweep.Run(ctx))

	assert.Zero(t, sessions.Len())
	assert.Equal(t, 1, pruner.calls)
}

func TestSchedulerRecordsJobRuns(t *testing.T) {
	m := metrics.New()
	s := NewScheduler(time.UTC, nil, m)

	s.run("digest", func(context.Context) error { return nil })
	s.run("digest", func(context.Context) error { return errors.New("boom") })

	n, err := testutil.GatherAndCount(m.Registry, "booking_bot_scheduler_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(time.UTC, nil, nil)
	assert.Error(t, s.Add("digest", "every now and then", func(context.Context) error { return nil }))
	assert.NoError(t, s.Add("sweep", "@every 5m", func(context.Context) error { return nil }))

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
