package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"booking-bot/internal/handlers"
	"booking-bot/internal/models"
	"booking-bot/internal/roles"
	"booking-bot/internal/session"
	"booking-bot/internal/store"
	"booking-bot/pkg/logger"

	"go.uber.org/zap"
)

const formTargetID = "target_id"

type roleAssignment struct {
	store store.Store
	log   *zap.Logger
}

// NewRoleAssignment builds the owner flow that promotes or demotes a
// registered user.
func NewRoleAssignment(s store.Store, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.NewNop()
	}
	r := &roleAssignment{store: s, log: log}
	return &Flow{
		Name:  "role_assignment",
		Entry: roles.RequireOwner,
		Start: r.start,
		Steps: map[session.State]handlers.Func{
			session.AwaitingAdminUserID: r.enterUserID,
			session.AwaitingAdminRole:   r.chooseRole,
		},
	}
}

func (r *roleAssignment) start(_ context.Context, req *handlers.Request) (handlers.Response, error) {
	req.Session.Begin(session.AwaitingAdminUserID)
	return handlers.Response{
		Text:    "Enter the user id. The user must have messaged the bot before.",
		Buttons: handlers.CancelKeyboard(),
	}, nil
}

func (r *roleAssignment) enterUserID(ctx context.Context, req *handlers.Request) (handlers.Response, error) {
	raw, ok := textInput(req)
	if !ok {
		return reprompt("Please type the numeric user id:", handlers.CancelKeyboard(), "expected text")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return reprompt("The user id must be a number. Try again:", handlers.CancelKeyboard(), fmt.Sprintf("user id %q", raw))
	}
	if id == req.UserID {
		return reprompt("You cannot change your own role. Enter another user id:", handlers.CancelKeyboard(), "owner targeting self")
	}

	u, err := r.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		req.Session.Reset()
		return handlers.Response{
			Text:    fmt.Sprintf("User %d is not registered. Ask them to message the bot first.", id),
			Buttons: handlers.OwnerKeyboard(),
		}, err
	}
	if err != nil {
		return handlers.Response{}, fmt.Errorf("failed to get user: %w", err)
	}
	if u.Role == models.RoleOwner {
		req.Session.Reset()
		return handlers.Response{Text: fmt.Sprintf("User %d is an owner.", id), Buttons: handlers.OwnerKeyboard()}, nil
	}

	req.Session.State = session.AwaitingAdminRole
	req.Session.Form[formTargetID] = strconv.FormatInt(id, 10)
	return handlers.Response{
		Text:    fmt.Sprintf("User %d is currently %s. Choose the new role:", id, u.Role),
		Buttons: handlers.RoleSelectionKeyboard(),
	}, nil
}

func (r *roleAssignment) chooseRole(ctx context.Context, req *handlers.Request) (handlers.Response, error) {
	arg, ok := buttonInput(req, "role")
	role := models.UserRole(arg)
	if !ok || (role != models.RoleAdmin && role != models.RoleClient) {
		return reprompt("Choose Admin or Client:", handlers.RoleSelectionKeyboard(), fmt.Sprintf("role %q", arg))
	}

	id, err := strconv.ParseInt(req.Session.Form[formTargetID], 10, 64)
	if err != nil {
		return handlers.Response{}, fmt.Errorf("corrupt role form: %w", err)
	}

	err = r.store.SetUserRole(ctx, id, role)
	if errors.Is(err, store.ErrNotFound) {
		req.Session.Reset()
		return handlers.Response{Text: fmt.Sprintf("User %d no longer exists.", id), Buttons: handlers.OwnerKeyboard()}, err
	}
	if err != nil {
		return handlers.Response{}, fmt.Errorf("failed to set role: %w", err)
	}

	r.log.Info("Role changed",
		zap.Int64(logger.FieldUserID, req.UserID),
		zap.Int64("target_user_id", id),
		zap.String("role", string(role)),
	)

	req.Session.Reset()
	return handlers.Response{
		Text:    fmt.Sprintf("User %d is now %s.", id, role),
		Buttons: handlers.OwnerKeyboard(),
	}, nil
}
