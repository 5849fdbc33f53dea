package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"booking-bot/internal/handlers"
	"booking-bot/internal/roles"
	"booking-bot/internal/session"
	"booking-bot/internal/store"
	"booking-bot/pkg/logger"

	"go.uber.org/zap"
)

const (
	formServiceID   = "service_id"
	formServiceName = "service_name"
	formDate        = "date"
	formTime        = "time"
)

type booking struct {
	store     store.Store
	validator Validator
	log       *zap.Logger
}

// NewBooking builds the client booking flow:
// service, date, time, confirmation.
func NewBooking(s store.Store, v Validator, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.NewNop()
	}
	b := &booking{store: s, validator: v, log: log}
	return &Flow{
		Name:  "booking",
		Entry: roles.RequireNone,
		Start: b.start,
		Steps: map[session.State]handlers.Func{
			session.AwaitingService:      b.chooseService,
			session.AwaitingDate:         b.enterDate,
			session.AwaitingTime:         b.enterTime,
			session.AwaitingConfirmation: b.confirm,
		},
	}
}

func (b *booking) start(ctx context.Context, req *handlers.Request) (handlers.Response, error) {
	resp, err := b.serviceList(ctx)
	if err != nil {
		return handlers.Response{}, err
	}
	if resp.Empty() {
		return handlers.Response{Text: "No services are available right now.", Buttons: handlers.BackKeyboard()}, nil
	}
	req.Session.Begin(session.AwaitingService)
	return resp, nil
}

func (b *booking) serviceList(ctx context.Context) (handlers.Response, error) {
	services, err := b.store.ListServices(ctx)
	if err != nil {
		return handlers.Response{}, fmt.Errorf("failed to list services: %w", err)
	}
	if len(services) == 0 {
		return handlers.Response{}, nil
	}

	rows := make([][]handlers.Button, 0, len(services)+1)
	for _, s := range services {
		rows = append(rows, []handlers.Button{{
			Text: fmt.Sprintf("%s - %s", s.Name, handlers.FormatPrice(s.Price)),
			Data: fmt.Sprintf("svc:%d", s.ID),
		}})
	}
	rows = append(rows, handlers.CancelKeyboard()...)
	return handlers.Response{Text: "Choose a service:", Buttons: rows}, nil
}

func (b *booking) chooseService(ctx context.Context, req *handlers.Request) (handlers.Response, error) {
	arg, ok := buttonInput(req, "svc")
	if !ok {
		resp, err := b.serviceList(ctx)
		if err != nil {
			return handlers.Response{}, err
		}
		if len(resp.Buttons) == 0 {
			return reprompt("No services are available right now.", handlers.CancelKeyboard(), "expected a service button")
		}
		return reprompt("Please pick a service from the list.", resp.Buttons, "expected a service button")
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return reprompt("Please pick a service from the list.", handlers.CancelKeyboard(), "bad service id")
	}

	svc, err := b.store.GetService(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		req.Session.Reset()
		return handlers.Response{Text: "That service is no longer available.", Buttons: handlers.MainMenuKeyboard(req.Caps)}, err
	}
	if err != nil {
		return handlers.Response{}, fmt.Errorf("failed to get service: %w", err)
	}

	req.Session.State = session.AwaitingDate
	req.Session.Form[formServiceID] = strconv.FormatInt(svc.ID, 10)
	req.Session.Form[formServiceName] = svc.Name

	example, _ := b.validator.Examples()
	return handlers.Response{
		Text:    fmt.Sprintf("%s selected. Enter the date, for example %s:", svc.Name, example),
		Buttons: handlers.CancelKeyboard(),
	}, nil
}

func (b *booking) enterDate(_ context.Context, req *handlers.Request) (handlers.Response, error) {
	example, _ := b.validator.Examples()
	date, ok := textInput(req)
	if !ok {
		return reprompt(fmt.Sprintf("Please type the date, for example %s:", example), handlers.CancelKeyboard(), "expected text")
	}
	if err := b.validator.ValidateDate(date); err != nil {
		return handlers.Response{
			Text:    fmt.Sprintf("That date is not valid. Use the format %s:", example),
			Buttons: handlers.CancelKeyboard(),
		}, err
	}

	req.Session.State = session.AwaitingTime
	req.Session.Form[formDate] = date

	_, tmExample := b.validator.Examples()
	return handlers.Response{
		Text:    fmt.Sprintf("Enter the time, for example %s:", tmExample),
		Buttons: handlers.CancelKeyboard(),
	}, nil
}

func (b *booking) enterTime(ctx context.Context, req *handlers.Request) (handlers.Response, error) {
	_, example := b.validator.Examples()
	tm, ok := textInput(req)
	if !ok {
		return reprompt(fmt.Sprintf("Please type the time, for example %s:", example), handlers.CancelKeyboard(), "expected text")
	}
	date := req.Session.Form[formDate]
	if err := b.validator.ValidateTime(date, tm); err != nil {
		return handlers.Response{
			Text:    fmt.Sprintf("That time is not valid. Use the format %s:", example),
			Buttons: handlers.CancelKeyboard(),
		}, err
	}

	id, _ := strconv.ParseInt(req.Session.Form[formServiceID], 10, 64)
	svc, err := b.store.GetService(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		req.Session.Reset()
		return handlers.Response{Text: "That service is no longer available.", Buttons: handlers.MainMenuKeyboard(req.Caps)}, err
	}
	if err != nil {
		return handlers.Response{}, fmt.Errorf("failed to get service: %w", err)
	}

	req.Session.State = session.AwaitingConfirmation
	req.Session.Form[formTime] = tm

	return handlers.Response{
		Text: fmt.Sprintf("Book %s on %s at %s for %s?",
			svc.Name, date, tm, handlers.FormatPrice(svc.Price)),
		Buttons: handlers.ConfirmKeyboard(),
	}, nil
}

func (b *booking) confirm(ctx context.Context, req *handlers.Request) (handlers.Response, error) {
	if _, ok := buttonInput(req, "confirm"); !ok {
		return reprompt("Press Confirm to book or Cancel to stop.", handlers.ConfirmKeyboard(), "expected confirmation")
	}

	form := req.Session.Form
	serviceID, err := strconv.ParseInt(form[formServiceID], 10, 64)
	if err != nil {
		return handlers.Response{}, fmt.Errorf("corrupt booking form: %w", err)
	}

	id, err := b.store.CreateAppointment(ctx, req.UserID, serviceID, form[formDate], form[formTime])
	if errors.Is(err, store.ErrNotFound) {
		req.Session.Reset()
		return handlers.Response{
			Text:    "Sorry, that service was removed before you confirmed. Nothing was booked.",
			Buttons: handlers.MainMenuKeyboard(req.Caps),
		}, err
	}
	if err != nil {
		return handlers.Response{}, fmt.Errorf("failed to create appointment: %w", err)
	}

	b.log.Info("Appointment booked",
		zap.Int64(logger.FieldUserID, req.UserID),
		zap.Int64("appointment_id", id),
		zap.Int64("service_id", serviceID),
	)

	text := fmt.Sprintf("Booked! Appointment #%d: %s on %s at %s.",
		id, form[formServiceName], form[formDate], form[formTime])
	req.Session.Reset()
	return handlers.Response{Text: text, Buttons: handlers.MainMenuKeyboard(req.Caps)}, nil
}
