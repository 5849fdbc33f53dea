package flows

import (
	"context"
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
	formName        = "name"
	formDescription = "description"
)

type authoring struct {
	store store.Store
	log   *zap.Logger
}

// NewServiceAuthoring builds the admin flow that adds a service.
func NewServiceAuthoring(s store.Store, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.NewNop()
	}
	a := &authoring{store: s, log: log}
	return &Flow{
		Name:  "service_authoring",
		Entry: roles.RequireAdmin,
		Start: a.start,
		Steps: map[session.State]handlers.Func{
			session.AwaitingServiceName:        a.enterName,
			session.AwaitingServiceDescription: a.enterDescription,
			session.AwaitingServicePrice:       a.enterPrice,
		},
	}
}

func (a *authoring) start(_ context.Context, req *handlers.Request) (handlers.Response, error) {
	req.Session.Begin(session.AwaitingServiceName)
	return handlers.Response{Text: "Enter the service name:", Buttons: handlers.CancelKeyboard()}, nil
}

func (a *authoring) enterName(_ context.Context, req *handlers.Request) (handlers.Response, error) {
	name, ok := textInput(req)
	if !ok || name == "" {
		return reprompt("Please type a name for the service:", handlers.CancelKeyboard(), "empty service name")
	}

	req.Session.State = session.AwaitingServiceDescription
	req.Session.Form[formName] = name
	return handlers.Response{
		Text:    "Enter a description, or - for none:",
		Buttons: handlers.CancelKeyboard(),
	}, nil
}

func (a *authoring) enterDescription(_ context.Context, req *handlers.Request) (handlers.Response, error) {
	desc, ok := textInput(req)
	if !ok {
		return reprompt("Please type a description, or - for none:", handlers.CancelKeyboard(), "expected text")
	}
	if desc == "-" {
		desc = ""
	}

	req.Session.State = session.AwaitingServicePrice
	req.Session.Form[formDescription] = desc
	return handlers.Response{Text: "Enter the price:", Buttons: handlers.CancelKeyboard()}, nil
}

func (a *authoring) enterPrice(ctx context.Context, req *handlers.Request) (handlers.Response, error) {
	raw, ok := textInput(req)
	if !ok {
		return reprompt("Please type the price as a number:", handlers.CancelKeyboard(), "expected text")
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return reprompt("The price must be a number. Try again:", handlers.CancelKeyboard(), fmt.Sprintf("price %q", raw))
	}
	if err := store.ValidatePrice(price); err != nil {
		return handlers.Response{Text: "The price must be zero or more. Try again:", Buttons: handlers.CancelKeyboard()}, err
	}

	name := req.Session.Form[formName]
	id, err := a.store.AddService(ctx, name, req.Session.Form[formDescription], price)
	if err != nil {
		return handlers.Response{}, fmt.Errorf("failed to add service: %w", err)
	}

	a.log.Info("Service added",
		zap.Int64(logger.FieldUserID, req.UserID),
		zap.Int64("service_id", id),
		zap.String("name", name),
	)

	req.Session.Reset()
	return handlers.Response{
		Text:    fmt.Sprintf("Service #%d %s added at %s.", id, name, handlers.FormatPrice(price)),
		Buttons: handlers.AdminKeyboard(),
	}, nil
}
