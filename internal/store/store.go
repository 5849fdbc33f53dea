// Package store defines the record store contract shared by every backend,
// the error taxonomy callers classify against, and the retrying decorator
// applied at the store boundary.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"booking-bot/internal/models"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// AnyUser disables the ownership check in CancelAppointment.
const AnyUser int64 = 0

// Store is the durable backend for users, services, appointments and history.
// Implementations must be safe for concurrent use.
type Store interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	AddUser(ctx context.Context, user models.User) (*models.User, error)
	SetUserRole(ctx context.Context, id int64, role models.UserRole) error
	ListUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error)

	ListServices(ctx context.Context) ([]models.Service, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	AddService(ctx context.Context, name, description string, price float64) (int64, error)
	DeleteService(ctx context.Context, id int64) error

	// CreateAppointment stores the appointment and its history entry as one
	// unit. Neither is visible without the other.
	CreateAppointment(ctx context.Context, userID, serviceID int64, date, time string) (int64, error)
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	GetAppointmentsByUser(ctx context.Context, userID int64) ([]models.Appointment, error)
	GetAllAppointments(ctx context.Context) ([]models.Appointment, error)
	CancelAppointment(ctx context.Context, id, expectedUserID int64) error

	GetHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error)
	GetStatistics(ctx context.Context, period models.Period) (*models.Statistics, error)
}

// transientError marks a backend failure worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so the retrying decorator treats it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// NormalizeRole defaults an empty role to client and rejects unknown ones.
func NormalizeRole(role models.UserRole) (models.UserRole, error) {
	if role == "" {
		return models.RoleClient, nil
	}
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return role, nil
}

// ValidatePrice rejects negative and non-finite prices.
func ValidatePrice(price float64) error {
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: price %v", ErrInvalidInput, price)
	}
	return nil
}

// BuildStatistics derives the aggregate view from history entries. Ties for
// the most popular service go to the lowest service id.
func BuildStatistics(entries []models.HistoryEntry) *models.Statistics {
	stats := &models.Statistics{
		PopularityByService: make(map[int64]int),
		RevenueByService:    make(map[int64]float64),
	}
	for _, e := range entries {
		stats.TotalBookings++
		stats.TotalRevenue += e.Amount
		stats.PopularityByService[e.ServiceID]++
		stats.RevenueByService[e.ServiceID] += e.Amount
	}
	stats.MostPopularServiceID = mostPopular(stats.PopularityByService)
	return stats
}

// StatisticsFromCounts builds the aggregate from per-service counts and
// revenue, for backends that group server-side.
func StatisticsFromCounts(counts map[int64]int, revenue map[int64]float64) *models.Statistics {
	stats := &models.Statistics{
		PopularityByService: counts,
		RevenueByService:    revenue,
	}
	for id, n := range counts {
		stats.TotalBookings += n
		stats.TotalRevenue += revenue[id]
	}
	stats.MostPopularServiceID = mostPopular(counts)
	return stats
}

func mostPopular(counts map[int64]int) int64 {
	var (
		best      int64
		bestCount int
	)
	for id, n := range counts {
		if n > bestCount || (n == bestCount && id < best) {
			best, bestCount = id, n
		}
	}
	return best
}
