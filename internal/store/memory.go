package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"booking-bot/internal/models"
)

// Memory is an in-memory Store. A single lock guards id allocation and the
// appointment+history commit. It is used by tests and STORAGE=memory.
type Memory struct {
	mu sync.RWMutex

	nextServiceID     int64
	nextAppointmentID int64

	users        map[int64]models.User
	services     map[int64]models.Service
	serviceOrder []int64
	appointments map[int64]models.Appointment
	apptOrder    []int64
	history      []models.HistoryEntry

	now func() time.Time
	// beforeHistory runs between the appointment and history writes. Tests
	// use it to inject a fault into the commit.
	beforeHistory func() error
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[int64]models.User),
		services:     make(map[int64]models.Service),
		appointments: make(map[int64]models.Appointment),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (m *Memory) AddUser(_ context.Context, user models.User) (*models.User, error) {
	role, err := NormalizeRole(user.Role)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; ok {
		return nil, fmt.Errorf("user %d: %w", user.ID, ErrAlreadyExists)
	}
	user.Role = role
	user.CreatedAt = m.now()
	m.users[user.ID] = user
	return &user, nil
}

func (m *Memory) SetUserRole(_ context.Context, id int64, role models.UserRole) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	u.Role = role
	m.users[id] = u
	return nil
}

func (m *Memory) ListUsersByRole(_ context.Context, role models.UserRole) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListServices(_ context.Context) ([]models.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Service, 0, len(m.serviceOrder))
	for _, id := range m.serviceOrder {
		out = append(out, m.services[id])
	}
	return out, nil
}

func (m *Memory) GetService(_ context.Context, id int64) (*models.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.services[id]
	if !ok {
		return nil, fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	return &s, nil
}

func (m *Memory) AddService(_ context.Context, name, description string, price float64) (int64, error) {
	if err := ValidatePrice(price); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextServiceID++
	id := m.nextServiceID
	m.services[id] = models.Service{ID: id, Name: name, Description: description, Price: price}
	m.serviceOrder = append(m.serviceOrder, id)
	return id, nil
}

func (m *Memory) DeleteService(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.services[id]; !ok {
		return fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	delete(m.services, id)
	for i, sid := range m.serviceOrder {
		if sid == id {
			m.serviceOrder = append(m.serviceOrder[:i], m.serviceOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) CreateAppointment(_ context.Context, userID, serviceID int64, date, tm string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return 0, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	svc, ok := m.services[serviceID]
	if !ok {
		return 0, fmt.Errorf("service %d: %w", serviceID, ErrNotFound)
	}

	// Both records are staged and only published once nothing can fail.
	appt := models.Appointment{
		ID:        m.nextAppointmentID + 1,
		UserID:    userID,
		ServiceID: serviceID,
		Date:      date,
		Time:      tm,
		Status:    models.StatusConfirmed,
	}
	if m.beforeHistory != nil {
		if err := m.beforeHistory(); err != nil {
			return 0, fmt.Errorf("failed to append history: %w", err)
		}
	}
	entry := models.HistoryEntry{
		Timestamp: m.now(),
		UserID:    userID,
		ServiceID: serviceID,
		Date:      date,
		Time:      tm,
		Amount:    svc.Price,
	}

	m.nextAppointmentID = appt.ID
	m.appointments[appt.ID] = appt
	m.apptOrder = append(m.apptOrder, appt.ID)
	m.history = append(m.history, entry)
	return appt.ID, nil
}

func (m *Memory) GetAppointment(_ context.Context, id int64) (*models.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}
	return &a, nil
}

func (m *Memory) GetAppointmentsByUser(_ context.Context, userID int64) ([]models.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Appointment
	for _, id := range m.apptOrder {
		if a := m.appointments[id]; a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) GetAllAppointments(_ context.Context) ([]models.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Appointment, 0, len(m.apptOrder))
	for _, id := range m.apptOrder {
		out = append(out, m.appointments[id])
	}
	return out, nil
}

func (m *Memory) CancelAppointment(_ context.Context, id, expectedUserID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}
	if expectedUserID != AnyUser && a.UserID != expectedUserID {
		return fmt.Errorf("appointment %d: %w", id, ErrForbidden)
	}
	if a.Status == models.StatusCanceled {
		return nil
	}
	a.Status = models.StatusCanceled
	m.appointments[id] = a
	return nil
}

func (m *Memory) GetHistory(_ context.Context, filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.HistoryEntry
	for _, e := range m.history {
		if filter.UserID != 0 && e.UserID != filter.UserID {
			continue
		}
		if !filter.Contains(e.Timestamp) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) GetStatistics(ctx context.Context, period models.Period) (*models.Statistics, error) {
	entries, err := m.GetHistory(ctx, models.HistoryFilter{Period: period})
	if err != nil {
		return nil, err
	}
	return BuildStatistics(entries), nil
}
