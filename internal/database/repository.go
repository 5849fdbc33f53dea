package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booking-bot/internal/models"
	"booking-bot/internal/store"
)

var _ store.Store = (*DB)(nil)

func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, store.ErrNotFound)
	}
	return classify(err)
}

// User operations
func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User

	err := db.QueryRowContext(ctx, `
		SELECT id, handle, name, role, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Handle, &user.DisplayName, &user.Role, &user.CreatedAt)

	if err != nil {
		return nil, notFound(err, "user", id)
	}

	return &user, nil
}

func (db *DB) AddUser(ctx context.Context, user models.User) (*models.User, error) {
	role, err := store.NormalizeRole(user.Role)
	if err != nil {
		return nil, err
	}
	user.Role = role

	err = db.QueryRowContext(ctx, `
		INSERT INTO users (id, handle, name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`, user.ID, user.Handle, user.DisplayName, user.Role).Scan(&user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", user.ID, store.ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add user: %w", classify(err))
	}

	return &user, nil
}

func (db *DB) SetUserRole(ctx context.Context, id int64, role models.UserRole) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, role)
	}

	res, err := db.ExecContext(ctx, `UPDATE users SET role = $1 WHERE id = $2`, role, id)
	if err != nil {
		return fmt.Errorf("failed to set role: %w", classify(err))
	}
	return requireOne(res, "user", id)
}

func (db *DB) ListUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, handle, name, role, created_at
		FROM users
		WHERE role = $1
		ORDER BY id
	`, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", classify(err))
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Handle, &u.DisplayName, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, classify(rows.Err())
}

// Service operations
func (db *DB) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, description, price
		FROM services
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", classify(err))
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var s models.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Price); err != nil {
			return nil, err
		}
		services = append(services, s)
	}

	return services, classify(rows.Err())
}

func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	var s models.Service

	err := db.QueryRowContext(ctx, `
		SELECT id, name, description, price
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Description, &s.Price)

	if err != nil {
		return nil, notFound(err, "service", id)
	}

	return &s, nil
}

func (db *DB) AddService(ctx context.Context, name, description string, price float64) (int64, error) {
	if err := store.ValidatePrice(price); err != nil {
		return 0, err
	}

	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO services (name, description, price)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, description, price).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("failed to add service: %w", classify(err))
	}

	return id, nil
}

func (db *DB) DeleteService(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", classify(err))
	}
	return requireOne(res, "service", id)
}

// Appointment operations

// CreateAppointment inserts the appointment and its history row in one
// transaction. The history amount is read inside the same transaction.
func (db *DB) CreateAppointment(ctx context.Context, userID, serviceID int64, date, tm string) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return 0, classify(err)
	}
	if !exists {
		return 0, fmt.Errorf("user %d: %w", userID, store.ErrNotFound)
	}

	var price float64
	err = tx.QueryRowContext(ctx, `SELECT price FROM services WHERE id = $1`, serviceID).Scan(&price)
	if err != nil {
		return 0, notFound(err, "service", serviceID)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO appointments (user_id, service_id, date, time, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, userID, serviceID, date, tm, models.StatusConfirmed).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert appointment: %w", classify(err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO history (user_id, service_id, date, time, amount)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, serviceID, date, tm, price)
	if err != nil {
		return 0, fmt.Errorf("failed to append history: %w", classify(err))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit appointment: %w", err)
	}

	return id, nil
}

const appointmentColumns = `id, user_id, service_id, date, time, status`

func scanAppointments(rows *sql.Rows) ([]models.Appointment, error) {
	defer rows.Close()

	var appts []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.UserID, &a.ServiceID, &a.Date, &a.Time, &a.Status); err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, classify(rows.Err())
}

func (db *DB) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	var a models.Appointment

	err := db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id).Scan(&a.ID, &a.UserID, &a.ServiceID, &a.Date, &a.Time, &a.Status)

	if err != nil {
		return nil, notFound(err, "appointment", id)
	}

	return &a, nil
}

func (db *DB) GetAppointmentsByUser(ctx context.Context, userID int64) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointments: %w", classify(err))
	}
	return scanAppointments(rows)
}

func (db *DB) GetAllAppointments(ctx context.Context) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointments: %w", classify(err))
	}
	return scanAppointments(rows)
}

func (db *DB) CancelAppointment(ctx context.Context, id, expectedUserID int64) error {
	var owner int64
	err := db.QueryRowContext(ctx, `SELECT user_id FROM appointments WHERE id = $1`, id).Scan(&owner)
	if err != nil {
		return notFound(err, "appointment", id)
	}
	if expectedUserID != store.AnyUser && owner != expectedUserID {
		return fmt.Errorf("appointment %d: %w", id, store.ErrForbidden)
	}

	_, err = db.ExecContext(ctx, `UPDATE appointments SET status = $1 WHERE id = $2`, models.StatusCanceled, id)
	if err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", classify(err))
	}
	return nil
}

// History operations
func (db *DB) GetHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	from, to := periodArgs(filter.Period)
	rows, err := db.QueryContext(ctx, `
		SELECT ts, user_id, service_id, date, time, amount
		FROM history
		WHERE ($1::timestamptz IS NULL OR ts >= $1)
		  AND ($2::timestamptz IS NULL OR ts <= $2)
		  AND ($3::bigint = 0 OR user_id = $3)
		ORDER BY id
	`, from, to, filter.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", classify(err))
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.Timestamp, &e.UserID, &e.ServiceID, &e.Date, &e.Time, &e.Amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, classify(rows.Err())
}

// GetStatistics groups history server-side.
func (db *DB) GetStatistics(ctx context.Context, period models.Period) (*models.Statistics, error) {
	from, to := periodArgs(period)
	rows, err := db.QueryContext(ctx, `
		SELECT service_id, COUNT(*), COALESCE(SUM(amount), 0)
		FROM history
		WHERE ($1::timestamptz IS NULL OR ts >= $1)
		  AND ($2::timestamptz IS NULL OR ts <= $2)
		GROUP BY service_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", classify(err))
	}
	defer rows.Close()

	counts := make(map[int64]int)
	revenue := make(map[int64]float64)
	for rows.Next() {
		var (
			serviceID int64
			count     int
			sum       float64
		)
		if err := rows.Scan(&serviceID, &count, &sum); err != nil {
			return nil, err
		}
		counts[serviceID] = count
		revenue[serviceID] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return store.StatisticsFromCounts(counts, revenue), nil
}

func periodArgs(p models.Period) (sql.NullTime, sql.NullTime) {
	return sql.NullTime{Time: p.From, Valid: !p.From.IsZero()},
		sql.NullTime{Time: p.To, Valid: !p.To.IsZero()}
}

func requireOne(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, store.ErrNotFound)
	}
	return nil
}
