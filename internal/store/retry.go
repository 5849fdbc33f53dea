package store

import (
	"context"
	"fmt"
	"time"

	"booking-bot/internal/models"
	"booking-bot/pkg/logger"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// RetryPolicy bounds the exponential backoff applied to transient failures.
type RetryPolicy struct {
	Retries uint64
	Base    time.Duration
	Max     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, Base: 100 * time.Millisecond, Max: 2 * time.Second}
}

// Retrying decorates a Store: transient errors are retried with bounded
// exponential backoff and reported as ErrStoreUnavailable once exhausted.
type Retrying struct {
	next   Store
	policy RetryPolicy
	log    *zap.Logger
}

var _ Store = (*Retrying)(nil)

func WithRetry(next Store, policy RetryPolicy, log *zap.Logger) *Retrying {
	if policy.Base <= 0 {
		policy.Base = DefaultRetryPolicy().Base
	}
	if policy.Max < policy.Base {
		policy.Max = policy.Base
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retrying{next: next, policy: policy, log: log}
}

func (r *Retrying) backoff() retry.Backoff {
	b := retry.NewExponential(r.policy.Base)
	b = retry.WithCappedDuration(r.policy.Max, b)
	return retry.WithMaxRetries(r.policy.Retries, b)
}

func call[T any](ctx context.Context, r *Retrying, op string, fn func(context.Context) (T, error)) (T, error) {
	var (
		out       T
		attempt   int
		transient error
	)
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++
		v, err := fn(ctx)
		if err != nil {
			if IsTransient(err) {
				transient = err
				r.log.Warn("Transient store failure",
					zap.String(logger.FieldOperation, op),
					zap.Int("attempt", attempt),
					zap.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		if IsTransient(err) {
			return out, fmt.Errorf("%s after %d attempts: %w: %v", op, attempt, ErrStoreUnavailable, err)
		}
		// The context ran out while waiting to retry a transient failure.
		if transient != nil && ctx.Err() != nil {
			return out, fmt.Errorf("%s gave up after %d attempts: %w: %v", op, attempt, ErrStoreUnavailable, transient)
		}
		return out, err
	}
	return out, nil
}

func exec(ctx context.Context, r *Retrying, op string, fn func(context.Context) error) error {
	_, err := call(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (r *Retrying) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return call(ctx, r, "get_user", func(ctx context.Context) (*models.User, error) {
		return r.next.GetUser(ctx, id)
	})
}

func (r *Retrying) AddUser(ctx context.Context, user models.User) (*models.User, error) {
	return call(ctx, r, "add_user", func(ctx context.Context) (*models.User, error) {
		return r.next.AddUser(ctx, user)
	})
}

func (r *Retrying) SetUserRole(ctx context.Context, id int64, role models.UserRole) error {
	return exec(ctx, r, "set_user_role", func(ctx context.Context) error {
		return r.next.SetUserRole(ctx, id, role)
	})
}

func (r *Retrying) ListUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	return call(ctx, r, "list_users_by_role", func(ctx context.Context) ([]models.User, error) {
		return r.next.ListUsersByRole(ctx, role)
	})
}

func (r *Retrying) ListServices(ctx context.Context) ([]models.Service, error) {
	return call(ctx, r, "list_services", r.next.ListServices)
}

func (r *Retrying) GetService(ctx context.Context, id int64) (*models.Service, error) {
	return call(ctx, r, "get_service", func(ctx context.Context) (*models.Service, error) {
		return r.next.GetService(ctx, id)
	})
}

func (r *Retrying) AddService(ctx context.Context, name, description string, price float64) (int64, error) {
	return call(ctx, r, "add_service", func(ctx context.Context) (int64, error) {
		return r.next.AddService(ctx, name, description, price)
	})
}

func (r *Retrying) DeleteService(ctx context.Context, id int64) error {
	return exec(ctx, r, "delete_service", func(ctx context.Context) error {
		return r.next.DeleteService(ctx, id)
	})
}

func (r *Retrying) CreateAppointment(ctx context.Context, userID, serviceID int64, date, tm string) (int64, error) {
	return call(ctx, r, "create_appointment", func(ctx context.Context) (int64, error) {
		return r.next.CreateAppointment(ctx, userID, serviceID, date, tm)
	})
}

func (r *Retrying) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	return call(ctx, r, "get_appointment", func(ctx context.Context) (*models.Appointment, error) {
		return r.next.GetAppointment(ctx, id)
	})
}

func (r *Retrying) GetAppointmentsByUser(ctx context.Context, userID int64) ([]models.Appointment, error) {
	return call(ctx, r, "get_appointments_by_user", func(ctx context.Context) ([]models.Appointment, error) {
		return r.next.GetAppointmentsByUser(ctx, userID)
	})
}

func (r *Retrying) GetAllAppointments(ctx context.Context) ([]models.Appointment, error) {
	return call(ctx, r, "get_all_appointments", r.next.GetAllAppointments)
}

func (r *Retrying) CancelAppointment(ctx context.Context, id, expectedUserID int64) error {
	return exec(ctx, r, "cancel_appointment", func(ctx context.Context) error {
		return r.next.CancelAppointment(ctx, id, expectedUserID)
	})
}

func (r *Retrying) GetHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	return call(ctx, r, "get_history", func(ctx context.Context) ([]models.HistoryEntry, error) {
		return r.next.GetHistory(ctx, filter)
	})
}

func (r *Retrying) GetStatistics(ctx context.Context, period models.Period) (*models.Statistics, error) {
	return call(ctx, r, "get_statistics", func(ctx context.Context) (*models.Statistics, error) {
		return r.next.GetStatistics(ctx, period)
	})
}
