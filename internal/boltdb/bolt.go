// Package boltdb provides a BoltDB-backed record store.
//
// Each table lives in its own bucket keyed by the big-endian record id, so
// cursor order is id order. Ids come from Bucket.NextSequence inside the
// write transaction, and bolt serializes writers, which makes allocation
// collision-free. An appointment and its history entry are written in the
// same transaction.
package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"booking-bot/internal/models"
	"booking-bot/internal/store"

	bolt "github.com/boltdb/bolt"
)

var (
	usersBucket        = []byte("users")
	servicesBucket     = []byte("services")
	appointmentsBucket = []byte("appointments")
	historyBucket      = []byte("history")
)

// Store wraps a BoltDB database and implements store.Store.
type Store struct {
	db  *bolt.DB
	now func() time.Time

	// beforeHistory runs inside the booking transaction between the two
	// writes. Tests use it to force a rollback.
	beforeHistory func() error
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures every bucket exists.
func Open(path string, timeout time.Duration) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", classify(err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{usersBucket, servicesBucket, appointmentsBucket, historyBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// classify marks lock and timeout failures as transient.
func classify(err error) error {
	if errors.Is(err, bolt.ErrTimeout) || errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return store.Transient(err)
	}
	return err
}

func (s *Store) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return classify(s.db.View(fn))
}

func (s *Store) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return classify(s.db.Update(fn))
}

func get[T any](b *bolt.Bucket, id int64, what string) (*T, error) {
	v := b.Get(itob(id))
	if v == nil {
		return nil, fmt.Errorf("%s %d: %w", what, id, store.ErrNotFound)
	}
	var out T
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s %d: %w", what, id, err)
	}
	return &out, nil
}

func put(b *bolt.Bucket, id int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(itob(id), data)
}

func each[T any](b *bolt.Bucket, keep func(T) bool) ([]T, error) {
	var out []T
	err := b.ForEach(func(_, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		if keep == nil || keep(item) {
			out = append(out, item)
		}
		return nil
	})
	return out, err
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u *models.User
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		u, err = get[models.User](tx.Bucket(usersBucket), id, "user")
		return err
	})
	return u, err
}

func (s *Store) AddUser(ctx context.Context, user models.User) (*models.User, error) {
	role, err := store.NormalizeRole(user.Role)
	if err != nil {
		return nil, err
	}
	user.Role = role

	err = s.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(usersBucket)
		if b.Get(itob(user.ID)) != nil {
			return fmt.Errorf("user %d: %w", user.ID, store.ErrAlreadyExists)
		}
		user.CreatedAt = s.now()
		return put(b, user.ID, user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) SetUserRole(ctx context.Context, id int64, role models.UserRole) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, role)
	}
	return s.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(usersBucket)
		u, err := get[models.User](b, id, "user")
		if err != nil {
			return err
		}
		if u.Role == role {
			return nil
		}
		u.Role = role
		return put(b, id, u)
	})
}

func (s *Store) ListUsersByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	var out []models.User
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		out, err = each(tx.Bucket(usersBucket), func(u models.User) bool { return u.Role == role })
		return err
	})
	// Keys are unsigned big-endian, so negative ids would sort last.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	var out []models.Service
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		out, err = each[models.Service](tx.Bucket(servicesBucket), nil)
		return err
	})
	return out, err
}

func (s *Store) GetService(ctx context.Context, id int64) (*models.Service, error) {
	var svc *models.Service
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		svc, err = get[models.Service](tx.Bucket(servicesBucket), id, "service")
		return err
	})
	return svc, err
}

func (s *Store) AddService(ctx context.Context, name, description string, price float64) (int64, error) {
	if err := store.ValidatePrice(price); err != nil {
		return 0, err
	}
	var id int64
	err := s.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(servicesBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		return put(b, id, models.Service{ID: id, Name: name, Description: description, Price: price})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// DeleteService removes the record. The bucket sequence is never rewound, so
// the id is not handed out again.
func (s *Store) DeleteService(ctx context.Context, id int64) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(servicesBucket)
		if b.Get(itob(id)) == nil {
			return fmt.Errorf("service %d: %w", id, store.ErrNotFound)
		}
		return b.Delete(itob(id))
	})
}

func (s *Store) CreateAppointment(ctx context.Context, userID, serviceID int64, date, tm string) (int64, error) {
	var id int64
	err := s.update(ctx, func(tx *bolt.Tx) error {
		if tx.Bucket(usersBucket).Get(itob(userID)) == nil {
			return fmt.Errorf("user %d: %w", userID, store.ErrNotFound)
		}
		svc, err := get[models.Service](tx.Bucket(servicesBucket), serviceID, "service")
		if err != nil {
			return err
		}

		appts := tx.Bucket(appointmentsBucket)
		seq, err := appts.NextSequence()
		if err != nil {
			return err
		}
		id = int64(seq)
		appt := models.Appointment{
			ID:        id,
			UserID:    userID,
			ServiceID: serviceID,
			Date:      date,
			Time:      tm,
			Status:    models.StatusConfirmed,
		}
		if err := put(appts, id, appt); err != nil {
			return err
		}

		if s.beforeHistory != nil {
			if err := s.beforeHistory(); err != nil {
				return fmt.Errorf("failed to append history: %w", err)
			}
		}

		hist := tx.Bucket(historyBucket)
		hseq, err := hist.NextSequence()
		if err != nil {
			return err
		}
		return put(hist, int64(hseq), models.HistoryEntry{
			Timestamp: s.now(),
			UserID:    userID,
			ServiceID: serviceID,
			Date:      date,
			Time:      tm,
			Amount:    svc.Price,
		})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	var a *models.Appointment
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		a, err = get[models.Appointment](tx.Bucket(appointmentsBucket), id, "appointment")
		return err
	})
	return a, err
}

func (s *Store) GetAppointmentsByUser(ctx context.Context, userID int64) ([]models.Appointment, error) {
	var out []models.Appointment
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		out, err = each(tx.Bucket(appointmentsBucket), func(a models.Appointment) bool { return a.UserID == userID })
		return err
	})
	return out, err
}

func (s *Store) GetAllAppointments(ctx context.Context) ([]models.Appointment, error) {
	var out []models.Appointment
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		out, err = each[models.Appointment](tx.Bucket(appointmentsBucket), nil)
		return err
	})
	return out, err
}

func (s *Store) CancelAppointment(ctx context.Context, id, expectedUserID int64) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(appointmentsBucket)
		a, err := get[models.Appointment](b, id, "appointment")
		if err != nil {
			return err
		}
		if expectedUserID != store.AnyUser && a.UserID != expectedUserID {
			return fmt.Errorf("appointment %d: %w", id, store.ErrForbidden)
		}
		if a.Status == models.StatusCanceled {
			return nil
		}
		a.Status = models.StatusCanceled
		return put(b, id, a)
	})
}

func (s *Store) GetHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	var out []models.HistoryEntry
	err := s.view(ctx, func(tx *bolt.Tx) error {
		var err error
		out, err = each(tx.Bucket(historyBucket), func(e models.HistoryEntry) bool {
			if filter.UserID != 0 && e.UserID != filter.UserID {
				return false
			}
			return filter.Contains(e.Timestamp)
		})
		return err
	})
	return out, err
}

func (s *Store) GetStatistics(ctx context.Context, period models.Period) (*models.Statistics, error) {
	entries, err := s.GetHistory(ctx, models.HistoryFilter{Period: period})
	if err != nil {
		return nil, err
	}
	return store.BuildStatistics(entries), nil
}
