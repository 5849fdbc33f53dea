// Package handlers holds the handler contract shared by the router and the
// conversation flows, and the stateless command handlers.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"booking-bot/internal/models"
	"booking-bot/internal/roles"
	"booking-bot/internal/session"
	"booking-bot/internal/stats"
	"booking-bot/internal/store"
	"booking-bot/pkg/logger"

	"go.uber.org/zap"
)

type EventKind string

const (
	EventCommand EventKind = "command"
	EventText    EventKind = "text"
	EventButton  EventKind = "button"
)

// Event is a transport-neutral inbound update. Payload holds the command
// name without the slash, the message text, or the callback data.
type Event struct {
	ID          string
	Kind        EventKind
	UserID      int64
	ChatID      int64
	Handle      string
	DisplayName string
	Payload     string
}

type Button struct {
	Text string
	Data string
}

type Response struct {
	Text    string
	Buttons [][]Button
}

func (r Response) Empty() bool {
	return r.Text == "" && len(r.Buttons) == 0
}

// Request is what a handler sees: the event, the resolved user, and a working
// copy of the session that the router commits according to the returned error.
type Request struct {
	Event
	User    *models.User
	Caps    roles.Capabilities
	Session *session.Session
	// Arg is the part of a button payload after the first ':'.
	Arg string
}

type Func func(ctx context.Context, req *Request) (Response, error)

type Handlers struct {
	store store.Store
	stats *stats.Aggregator
	log   *zap.Logger
}

func New(s store.Store, agg *stats.Aggregator, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{store: s, stats: agg, log: log}
}

func (h *Handlers) Start(_ context.Context, req *Request) (Response, error) {
	name := req.User.DisplayName
	if name == "" {
		name = "there"
	}
	return Response{
		Text:    fmt.Sprintf("Hello, %s! Welcome to the booking bot.", name),
		Buttons: MainMenuKeyboard(req.Caps),
	}, nil
}

func (h *Handlers) Help(_ context.Context, req *Request) (Response, error) {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("/book - book a service\n")
	b.WriteString("/appointments - your appointments\n")
	b.WriteString("/cancel - leave the current step\n")
	if req.Caps.CanAdmin {
		b.WriteString("/admin - manage services and appointments\n")
	}
	if req.Caps.CanOwn {
		b.WriteString("/owner - manage admins and view reports\n")
	}
	return Response{Text: b.String(), Buttons: MainMenuKeyboard(req.Caps)}, nil
}

func (h *Handlers) Menu(_ context.Context, req *Request) (Response, error) {
	return Response{Text: "Main menu:", Buttons: MainMenuKeyboard(req.Caps)}, nil
}

// Cancel leaves whatever step the user was in.
func (h *Handlers) Cancel(_ context.Context, req *Request) (Response, error) {
	req.Session.Reset()
	return Response{Text: "Canceled.", Buttons: MainMenuKeyboard(req.Caps)}, nil
}

func (h *Handlers) MyAppointments(ctx context.Context, req *Request) (Response, error) {
	appts, err := h.store.GetAppointmentsByUser(ctx, req.UserID)
	if err != nil {
		return Response{}, fmt.Errorf("failed to get appointments: %w", err)
	}
	if len(appts) == 0 {
		return Response{Text: "You have no appointments.", Buttons: BackKeyboard()}, nil
	}

	names, err := h.serviceNames(ctx)
	if err != nil {
		return Response{}, err
	}

	var (
		b    strings.Builder
		rows [][]Button
	)
	b.WriteString("Your appointments:\n")
	for _, a := range appts {
		b.WriteString(formatAppointment(a, names))
		b.WriteByte('\n')
		if a.Status == models.StatusConfirmed {
			rows = append(rows, []Button{{
				Text: fmt.Sprintf("Cancel #%d", a.ID),
				Data: fmt.Sprintf("cancel_appt:%d", a.ID),
			}})
		}
	}
	rows = append(rows, BackKeyboard()...)
	return Response{Text: b.String(), Buttons: rows}, nil
}

// CancelMine cancels one of the caller's own appointments.
func (h *Handlers) CancelMine(ctx context.Context, req *Request) (Response, error) {
	id, err := parseID(req.Arg)
	if err != nil {
		return Response{Text: "Unknown appointment."}, err
	}

	err = h.store.CancelAppointment(ctx, id, req.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Response{Text: "That appointment no longer exists."}, err
	case errors.Is(err, store.ErrForbidden):
		return Response{Text: "You can only cancel your own appointments."}, err
	case err != nil:
		return Response{}, fmt.Errorf("failed to cancel appointment: %w", err)
	}

	h.log.Info("Appointment canceled by client",
		zap.Int64(logger.FieldUserID, req.UserID),
		zap.Int64("appointment_id", id),
	)
	return Response{Text: fmt.Sprintf("Appointment #%d canceled.", id), Buttons: BackKeyboard()}, nil
}

func (h *Handlers) serviceNames(ctx context.Context) (map[int64]string, error) {
	services, err := h.store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	names := make(map[int64]string, len(services))
	for _, s := range services {
		names[s.ID] = s.Name
	}
	return names, nil
}

func formatAppointment(a models.Appointment, names map[int64]string) string {
	name, ok := names[a.ServiceID]
	if !ok {
		name = fmt.Sprintf("service #%d", a.ServiceID)
	}
	return fmt.Sprintf("#%d %s on %s at %s (%s)", a.ID, name, a.Date, a.Time, a.Status)
}

// FormatPrice renders a price the way every reply shows it.
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id %q", store.ErrInvalidInput, arg)
	}
	return id, nil
}
