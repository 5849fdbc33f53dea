// Package router turns inbound events into replies. Every event passes the
// same chain: identity, role resolution, session load with the commit rule,
// then the authorization gate and dispatch to a command, a button or the
// active flow step.
//
// The session is loaded before the gate because the route of a text or
// button event depends on the session state. The handler only ever sees a
// working copy, and a Forbidden outcome never commits it, so the stored
// session is untouched by a denied event.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"booking-bot/internal/flows"
	"booking-bot/internal/handlers"
	"booking-bot/internal/models"
	"booking-bot/internal/roles"
	"booking-bot/internal/session"
	"booking-bot/internal/store"
	"booking-bot/pkg/logger"

	"go.uber.org/zap"
)

type (
	Event     = handlers.Event
	EventKind = handlers.EventKind
	Response  = handlers.Response
	Button    = handlers.Button
)

const (
	EventCommand = handlers.EventCommand
	EventText    = handlers.EventText
	EventButton  = handlers.EventButton
)

// Middleware wraps a handler with one stage of processing.
type Middleware func(next handlers.Func) handlers.Func

// Route is one dispatch target and the capability it needs.
type Route struct {
	Name        string
	Requirement roles.Requirement
	Handle      handlers.Func
}

type Config struct {
	Store    store.Store
	Sessions session.Store
	Handlers *handlers.Handlers

	Booking          *flows.Flow
	ServiceAuthoring *flows.Flow
	RoleAssignment   *flows.Flow

	// Middleware runs outside the built-in chain, first to last.
	Middleware []Middleware
	Logger     *zap.Logger
}

type Router struct {
	store    store.Store
	sessions session.Store
	engine   *flows.Engine
	commands map[string]Route
	buttons  map[string]Route
	fallback Route
	chain    handlers.Func
	locks    keyedMutex
	log      *zap.Logger
}

func New(cfg Config) *Router {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := cfg.Handlers

	r := &Router{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		engine:   flows.NewEngine(cfg.Booking, cfg.ServiceAuthoring, cfg.RoleAssignment),
		log:      log,
	}

	none, admin, owner := roles.RequireNone, roles.RequireAdmin, roles.RequireOwner
	r.commands = map[string]Route{
		"start":        {"start", none, h.Start},
		"help":         {"help", none, h.Help},
		"book":         {"book", cfg.Booking.Entry, cfg.Booking.Start},
		"appointments": {"appointments", none, h.MyAppointments},
		"cancel":       {"cancel", none, h.Cancel},
		"admin":        {"admin", admin, h.AdminPanel},
		"owner":        {"owner", owner, h.OwnerPanel},
	}
	r.buttons = map[string]Route{
		"book":            {"book", cfg.Booking.Entry, cfg.Booking.Start},
		"cancel":          {"cancel", none, h.Cancel},
		"menu":            {"menu", none, h.Menu},
		"my_appts":        {"my_appts", none, h.MyAppointments},
		"cancel_appt":     {"cancel_appt", none, h.CancelMine},
		"adm_services":    {"adm_services", admin, h.Services},
		"adm_add_svc":     {"adm_add_svc", cfg.ServiceAuthoring.Entry, cfg.ServiceAuthoring.Start},
		"adm_del_svc":     {"adm_del_svc", admin, h.DeleteService},
		"adm_appts":       {"adm_appts", admin, h.AllAppointments},
		"adm_cancel_appt": {"adm_cancel_appt", admin, h.AdminCancel},
		"adm_stats":       {"adm_stats", admin, h.AdminStats},
		"own_admins":      {"own_admins", owner, h.Admins},
		"own_add_admin":   {"own_add_admin", cfg.RoleAssignment.Entry, cfg.RoleAssignment.Start},
		"own_demote":      {"own_demote", owner, h.Demote},
		"own_stats":       {"own_stats", owner, h.OwnerStats},
	}
	r.fallback = Route{"help", none, h.Help}

	chain := append([]Middleware{}, cfg.Middleware...)
	chain = append(chain, r.identify, r.resolveRoles, r.withSession)
	r.chain = build(r.dispatch, chain...)
	return r
}

func build(final handlers.Func, mw ...Middleware) handlers.Func {
	h := final
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// Handle processes one event. Events of the same user are serialized; the
// returned error is the classified outcome, the Response is always safe to
// send.
func (r *Router) Handle(ctx context.Context, ev Event) (Response, error) {
	unlock := r.locks.Lock(ev.UserID)
	defer unlock()

	return r.chain(ctx, &handlers.Request{Event: ev})
}

// identify loads the user, registering a client on first contact.
func (r *Router) identify(next handlers.Func) handlers.Func {
	return func(ctx context.Context, req *handlers.Request) (Response, error) {
		u, err := r.store.GetUser(ctx, req.UserID)
		if errors.Is(err, store.ErrNotFound) {
			u, err = r.register(ctx, req.Event)
		}
		if err != nil {
			return failureResponse(err), fmt.Errorf("failed to identify user: %w", err)
		}
		req.User = u
		return next(ctx, req)
	}
}

func (r *Router) register(ctx context.Context, ev Event) (*models.User, error) {
	u, err := r.store.AddUser(ctx, models.User{
		ID:          ev.UserID,
		Handle:      ev.Handle,
		DisplayName: ev.DisplayName,
		Role:        models.RoleClient,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return r.store.GetUser(ctx, ev.UserID)
	}
	if err != nil {
		return nil, err
	}

	r.log.Info("User registered", logger.User(ev.UserID, ev.ChatID)...)
	return u, nil
}

func (r *Router) resolveRoles(next handlers.Func) handlers.Func {
	return func(ctx context.Context, req *handlers.Request) (Response, error) {
		req.Caps = roles.Resolve(req.User)
		return next(ctx, req)
	}
}

// withSession hands the rest of the chain a working copy of the session and
// decides from the outcome whether that copy replaces the stored one.
func (r *Router) withSession(next handlers.Func) handlers.Func {
	return func(ctx context.Context, req *handlers.Request) (Response, error) {
		prior, err := r.sessions.Get(ctx, req.UserID)
		if err != nil {
			return failureResponse(err), fmt.Errorf("failed to load session: %w", err)
		}
		work := prior.Clone()
		req.Session = work

		resp, err := next(ctx, req)

		switch {
		case err == nil:
		case isUnavailable(err):
			return unavailableResponse(), err
		case errors.Is(err, store.ErrForbidden):
			if resp.Empty() {
				resp = Response{Text: "You do not have permission to do that."}
			}
			return resp, err
		case errors.Is(err, store.ErrInvalidInput):
			if resp.Empty() {
				resp = Response{Text: "That input is not valid. Please try again."}
			}
		case errors.Is(err, store.ErrNotFound):
			work.Reset()
			if resp.Empty() {
				resp = Response{Text: "That item no longer exists."}
			}
		default:
			r.log.Error("Handler failed",
				zap.Int64(logger.FieldUserID, req.UserID),
				zap.String(logger.FieldState, string(prior.State)),
				zap.Error(err),
			)
			work.Reset()
			resp = Response{
				Text:    "Something went wrong. Please start again.",
				Buttons: handlers.MainMenuKeyboard(req.Caps),
			}
		}

		if serr := r.commit(ctx, prior, work); serr != nil {
			return unavailableResponse(), fmt.Errorf("failed to save session: %w: %v", store.ErrStoreUnavailable, serr)
		}
		return resp, err
	}
}

// commit stores an active session and removes one that just went idle.
func (r *Router) commit(ctx context.Context, prior, work *session.Session) error {
	if work.Active() {
		return r.sessions.Save(ctx, work)
	}
	if prior.Active() {
		return r.sessions.Delete(ctx, work.UserID)
	}
	return nil
}

// dispatch resolves the route, applies the authorization gate and calls it.
func (r *Router) dispatch(ctx context.Context, req *handlers.Request) (Response, error) {
	route, arg := r.route(req)
	req.Arg = arg

	if !req.Caps.Allows(route.Requirement) {
		r.log.Warn("Permission denied",
			zap.Int64(logger.FieldUserID, req.UserID),
			zap.String(logger.FieldRoute, route.Name),
			zap.Stringer("requires", route.Requirement),
		)
		return Response{Text: "You do not have permission to do that."},
			fmt.Errorf("%w: %s requires %s", store.ErrForbidden, route.Name, route.Requirement)
	}

	return r.invoke(ctx, route, req)
}

// route picks the target for the event. Commands always interrupt an active
// flow; text and buttons feed it.
func (r *Router) route(req *handlers.Request) (Route, string) {
	s := req.Session
	switch req.Kind {
	case EventCommand:
		if s.Active() {
			r.log.Debug("Flow interrupted",
				zap.Int64(logger.FieldUserID, req.UserID),
				zap.String(logger.FieldState, string(s.State)),
			)
			s.Reset()
		}
		if rt, ok := r.commands[req.Payload]; ok {
			return rt, ""
		}

	case EventText, EventButton:
		// Cancel leaves any flow, whatever the user's current role.
		if s.Active() && req.Kind == EventButton && req.Payload == "cancel" {
			return r.buttons["cancel"], ""
		}
		if s.Active() {
			if step, ok := r.engine.Step(s.State); ok {
				return Route{Name: string(s.State), Requirement: step.Requirement, Handle: step.Handle}, ""
			}
			r.log.Warn("Unknown session state",
				zap.Int64(logger.FieldUserID, req.UserID),
				zap.String(logger.FieldState, string(s.State)),
			)
			s.Reset()
		}
		if req.Kind == EventButton {
			name, arg, _ := strings.Cut(req.Payload, ":")
			if rt, ok := r.buttons[name]; ok {
				return rt, arg
			}
		}
	}
	return r.fallback, ""
}

func (r *Router) invoke(ctx context.Context, route Route, req *handlers.Request) (resp Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Handler panicked",
				zap.String(logger.FieldRoute, route.Name),
				zap.Any("panic", p),
			)
			resp, err = Response{}, fmt.Errorf("handler %s panicked: %v", route.Name, p)
		}
	}()
	return route.Handle(ctx, req)
}

func isUnavailable(err error) bool {
	return errors.Is(err, store.ErrStoreUnavailable) || store.IsTransient(err)
}

func unavailableResponse() Response {
	return Response{Text: "The service is temporarily unavailable. Please try again later."}
}

func failureResponse(err error) Response {
	if isUnavailable(err) {
		return unavailableResponse()
	}
	return Response{Text: "Something went wrong. Please try again."}
}

// Outcome names the class of a Handle error for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isUnavailable(err):
		return "unavailable"
	case errors.Is(err, store.ErrForbidden):
		return "forbidden"
	case errors.Is(err, store.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
