package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"booking-bot/internal/models"
	"booking-bot/internal/store"
	"booking-bot/pkg/logger"

	"go.uber.org/zap"
)

func (h *Handlers) AdminPanel(_ context.Context, _ *Request) (Response, error) {
	return Response{Text: "Admin panel:", Buttons: AdminKeyboard()}, nil
}

func (h *Handlers) Services(ctx context.Context, _ *Request) (Response, error) {
	services, err := h.store.ListServices(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("failed to list services: %w", err)
	}
	if len(services) == 0 {
		return Response{Text: "No services yet.", Buttons: AdminKeyboard()}, nil
	}

	var (
		b    strings.Builder
		rows [][]Button
	)
	b.WriteString("Services:\n")
	for _, s := range services {
		fmt.Fprintf(&b, "#%d %s - %s\n", s.ID, s.Name, FormatPrice(s.Price))
		rows = append(rows, []Button{{
			Text: fmt.Sprintf("Delete %s", s.Name),
			Data: fmt.Sprintf("adm_del_svc:%d", s.ID),
		}})
	}
	rows = append(rows, []Button{{Text: "Back", Data: "menu"}})
	return Response{Text: b.String(), Buttons: rows}, nil
}

func (h *Handlers) DeleteService(ctx context.Context, req *Request) (Response, error) {
	id, err := parseID(req.Arg)
	if err != nil {
		return Response{Text: "Unknown service."}, err
	}

	if err := h.store.DeleteService(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Response{Text: "That service no longer exists."}, err
		}
		return Response{}, fmt.Errorf("failed to delete service: %w", err)
	}

	h.log.Info("Service deleted",
		zap.Int64(logger.FieldUserID, req.UserID),
		zap.Int64("service_id", id),
	)
	return Response{Text: fmt.Sprintf("Service #%d deleted.", id), Buttons: AdminKeyboard()}, nil
}

func (h *Handlers) AllAppointments(ctx context.Context, _ *Request) (Response, error) {
	appts, err := h.store.GetAllAppointments(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("failed to get appointments: %w", err)
	}
	if len(appts) == 0 {
		return Response{Text: "No appointments.", Buttons: AdminKeyboard()}, nil
	}

	names, err := h.serviceNames(ctx)
	if err != nil {
		return Response{}, err
	}

	var (
		b    strings.Builder
		rows [][]Button
	)
	b.WriteString("All appointments:\n")
	for _, a := range appts {
		fmt.Fprintf(&b, "%s user %d\n", formatAppointment(a, names), a.UserID)
		if a.Status == models.StatusConfirmed {
			rows = append(rows, []Button{{
				Text: fmt.Sprintf("Cancel #%d", a.ID),
				Data: fmt.Sprintf("adm_cancel_appt:%d", a.ID),
			}})
		}
	}
	rows = append(rows, []Button{{Text: "Back", Data: "menu"}})
	return Response{Text: b.String(), Buttons: rows}, nil
}

// AdminCancel cancels any user's appointment.
func (h *Handlers) AdminCancel(ctx context.Context, req *Request) (Response, error) {
	id, err := parseID(req.Arg)
	if err != nil {
		return Response{Text: "Unknown appointment."}, err
	}

	if err := h.store.CancelAppointment(ctx, id, store.AnyUser); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Response{Text: "That appointment no longer exists."}, err
		}
		return Response{}, fmt.Errorf("failed to cancel appointment: %w", err)
	}

	h.log.Info("Appointment canceled by admin",
		zap.Int64(logger.FieldUserID, req.UserID),
		zap.Int64("appointment_id", id),
	)
	return Response{Text: fmt.Sprintf("Appointment #%d canceled.", id), Buttons: AdminKeyboard()}, nil
}

func (h *Handlers) AdminStats(ctx context.Context, _ *Request) (Response, error) {
	sum, err := h.stats.Summary(ctx, models.Period{})
	if err != nil {
		return Response{}, err
	}

	text := fmt.Sprintf("Bookings: %d\nRevenue: %s", sum.TotalBookings, FormatPrice(sum.TotalRevenue))
	if sum.MostPopularID != 0 {
		text += fmt.Sprintf("\nMost popular: %s", sum.MostPopularName)
	}
	return Response{Text: text, Buttons: AdminKeyboard()}, nil
}

func (h *Handlers) OwnerPanel(_ context.Context, _ *Request) (Response, error) {
	return Response{Text: "Owner panel:", Buttons: OwnerKeyboard()}, nil
}

func (h *Handlers) Admins(ctx context.Context, _ *Request) (Response, error) {
	admins, err := h.store.ListUsersByRole(ctx, models.RoleAdmin)
	if err != nil {
		return Response{}, fmt.Errorf("failed to list admins: %w", err)
	}
	if len(admins) == 0 {
		return Response{Text: "There are no admins.", Buttons: OwnerKeyboard()}, nil
	}

	var (
		b    strings.Builder
		rows [][]Button
	)
	b.WriteString("Admins:\n")
	for _, u := range admins {
		fmt.Fprintf(&b, "%d %s", u.ID, u.DisplayName)
		if u.Handle != "" {
			fmt.Fprintf(&b, " @%s", u.Handle)
		}
		b.WriteByte('\n')
		rows = append(rows, []Button{{
			Text: fmt.Sprintf("Remove %d", u.ID),
			Data: fmt.Sprintf("own_demote:%d", u.ID),
		}})
	}
	rows = append(rows, []Button{{Text: "Back", Data: "menu"}})
	return Response{Text: b.String(), Buttons: rows}, nil
}

// Demote turns an admin back into a client.
func (h *Handlers) Demote(ctx context.Context, req *Request) (Response, error) {
	id, err := parseID(req.Arg)
	if err != nil {
		return Response{Text: "Unknown user."}, err
	}
	if id == req.UserID {
		return Response{Text: "You cannot change your own role."}, fmt.Errorf("%w: owner %d demoting self", store.ErrInvalidInput, id)
	}

	u, err := h.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Response{Text: "That user is not registered."}, err
		}
		return Response{}, fmt.Errorf("failed to get user: %w", err)
	}
	if u.Role != models.RoleAdmin {
		return Response{Text: fmt.Sprintf("User %d is not an admin.", id), Buttons: OwnerKeyboard()}, nil
	}

	if err := h.store.SetUserRole(ctx, id, models.RoleClient); err != nil {
		return Response{}, fmt.Errorf("failed to set role: %w", err)
	}

	h.log.Info("Admin removed",
		zap.Int64(logger.FieldUserID, req.UserID),
		zap.Int64("target_user_id", id),
	)
	return Response{Text: fmt.Sprintf("User %d is no longer an admin.", id), Buttons: OwnerKeyboard()}, nil
}

func (h *Handlers) OwnerStats(ctx context.Context, _ *Request) (Response, error) {
	r, err := h.stats.Report(ctx, models.Period{})
	if err != nil {
		return Response{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Bookings: %d\nRevenue: %s\n", r.TotalBookings, FormatPrice(r.TotalRevenue))
	if r.MostPopularID != 0 {
		fmt.Fprintf(&b, "Most popular: %s\n", r.MostPopularName)
	}
	if len(r.Services) > 0 {
		b.WriteString("\nBy service:\n")
		for _, l := range r.Services {
			fmt.Fprintf(&b, "%s: %d bookings, %s\n", l.Name, l.Bookings, FormatPrice(l.Revenue))
		}
	}
	return Response{Text: b.String(), Buttons: OwnerKeyboard()}, nil
}
