package models

import "time"

type UserRole string

const (
	RoleClient UserRole = "client"
	RoleAdmin  UserRole = "admin"
	RoleOwner  UserRole = "owner"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleClient, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCanceled  AppointmentStatus = "canceled"
)

type User struct {
	ID          int64     `json:"id" db:"id"`
	Handle      string    `json:"handle" db:"handle"`
	DisplayName string    `json:"name" db:"name"`
	Role        UserRole  `json:"role" db:"role"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Service struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Description string  `json:"description" db:"description"`
	Price       float64 `json:"price" db:"price"`
}

type Appointment struct {
	ID        int64             `json:"id" db:"id"`
	UserID    int64             `json:"user_id" db:"user_id"`
	ServiceID int64             `json:"service_id" db:"service_id"`
	Date      string            `json:"date" db:"date"`
	Time      string            `json:"time" db:"time"`
	Status    AppointmentStatus `json:"status" db:"status"`
}

// HistoryEntry is the append-only audit record written once per booking.
// Amount is the service price at booking time.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ServiceID int64     `json:"service_id" db:"service_id"`
	Date      string    `json:"date" db:"date"`
	Time      string    `json:"time" db:"time"`
	Amount    float64   `json:"amount" db:"amount"`
}

// Period bounds a history query. Zero values leave that side open.
type Period struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies inside the period, both ends inclusive.
func (p Period) Contains(t time.Time) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && t.After(p.To) {
		return false
	}
	return true
}

type HistoryFilter struct {
	Period
	// UserID restricts the result to one user when non-zero.
	UserID int64
}

type Statistics struct {
	TotalBookings        int
	TotalRevenue         float64
	PopularityByService  map[int64]int
	RevenueByService     map[int64]float64
	MostPopularServiceID int64
}
