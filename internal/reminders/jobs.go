package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"booking-bot/internal/metrics"
	"booking-bot/internal/models"
	"booking-bot/internal/router"
	"booking-bot/internal/session"
	"booking-bot/internal/store"

	"go.uber.org/zap"
)

// DailyDigest sends admins and owners the confirmed appointments booked for
// today. Recipients are messaged in their private chat, whose id equals
// their user id.
type DailyDigest struct {
	Store      store.Store
	Sender     router.Sender
	DateLayout string
	Now        func() time.Time
	Log        *zap.Logger
}

func (d *DailyDigest) Run(ctx context.Context) error {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	today := now().Format(d.DateLayout)

	all, err := d.Store.GetAllAppointments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list appointments: %w", err)
	}
	var due []models.Appointment
	for _, a := range all {
		if a.Status == models.StatusConfirmed && a.Date == today {
			due = append(due, a)
		}
	}
	if len(due) == 0 {
		return nil
	}

	text, err := d.render(ctx, today, due)
	if err != nil {
		return err
	}

	var recipients []models.User
	for _, role := range []models.UserRole{models.RoleOwner, models.RoleAdmin} {
		users, err := d.Store.ListUsersByRole(ctx, role)
		if err != nil {
			return fmt.Errorf("failed to list %s users: %w", role, err)
		}
		recipients = append(recipients, users...)
	}

	var failed int
	for _, u := range recipients {
		if err := d.Sender.Send(ctx, u.ID, router.Response{Text: text}); err != nil {
			failed++
			if d.Log != nil {
				d.Log.Warn("Failed to deliver digest", zap.Int64("user_id", u.ID), zap.Error(err))
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("digest undelivered to %d of %d recipients", failed, len(recipients))
	}
	return nil
}

func (d *DailyDigest) render(ctx context.Context, today string, due []models.Appointment) (string, error) {
	services, err := d.Store.ListServices(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list services: %w", err)
	}
	names := make(map[int64]string, len(services))
	for _, s := range services {
		names[s.ID] = s.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Appointments for %s:", today)
	for _, a := range due {
		name, ok := names[a.ServiceID]
		if !ok {
			name = fmt.Sprintf("#%d (deleted)", a.ServiceID)
		}
		fmt.Fprintf(&b, "\n#%d %s at %s, user %d", a.ID, name, a.Time, a.UserID)
	}
	return b.String(), nil
}

// LimiterPruner is implemented by *router.Dispatcher.
type LimiterPruner interface {
	PruneLimiters() int
}

// Sweep expires idle conversations and forgets rate limiters that have
// refilled.
type Sweep struct {
	Sessions *session.Memory
	TTL      time.Duration
	Limiters LimiterPruner
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

func (s *Sweep) Run(_ context.Context) error {
	var expired, pruned int
	if s.Sessions != nil {
		if s.TTL > 0 {
			expired = s.Sessions.Expire(s.TTL)
		}
		s.Metrics.SetActiveSessions(s.Sessions.Len())
	}
	if s.Limiters != nil {
		pruned = s.Limiters.PruneLimiters()
	}
	if s.Log != nil && expired+pruned > 0 {
		s.Log.Debug("Swept idle state", zap.Int("sessions", expired), zap.Int("limiters", pruned))
	}
	return nil
}
