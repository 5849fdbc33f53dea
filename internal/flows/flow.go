// Package flows implements the multi-step conversations. Each flow is a
// table from session state to the step that consumes the next input. Flows
// keep everything they need in the session form.
package flows

import (
	"context"
	"fmt"
	"strings"

	"booking-bot/internal/handlers"
	"booking-bot/internal/roles"
	"booking-bot/internal/session"
	"booking-bot/internal/store"
)

// Step consumes one input while the session is in a given state.
type Step struct {
	Requirement roles.Requirement
	Handle      handlers.Func
}

type Flow struct {
	Name string
	// Entry is the capability needed to start the flow and to take any step.
	Entry roles.Requirement
	Start handlers.Func
	Steps map[session.State]handlers.Func
}

// Engine indexes the steps of every registered flow by state.
type Engine struct {
	flows []*Flow
	steps map[session.State]Step
}

// NewEngine panics if two flows claim the same state.
func NewEngine(flows ...*Flow) *Engine {
	e := &Engine{flows: flows, steps: make(map[session.State]Step)}
	for _, f := range flows {
		for state, fn := range f.Steps {
			if state == session.Idle {
				panic(fmt.Sprintf("flows: %s registers a step for the idle state", f.Name))
			}
			if _, dup := e.steps[state]; dup {
				panic(fmt.Sprintf("flows: state %s registered twice", state))
			}
			e.steps[state] = Step{Requirement: f.Entry, Handle: cancellable(fn)}
		}
	}
	return e
}

// Step returns the handler for the session's current state.
func (e *Engine) Step(state session.State) (Step, bool) {
	s, ok := e.steps[state]
	return s, ok
}

// cancellable lets the Cancel button end a flow from any step.
func cancellable(next handlers.Func) handlers.Func {
	return func(ctx context.Context, req *handlers.Request) (handlers.Response, error) {
		if req.Kind == handlers.EventButton && req.Payload == "cancel" {
			req.Session.Reset()
			return handlers.Response{Text: "Canceled.", Buttons: handlers.MainMenuKeyboard(req.Caps)}, nil
		}
		return next(ctx, req)
	}
}

// textInput returns the trimmed message text, or false for button presses.
func textInput(req *handlers.Request) (string, bool) {
	if req.Kind != handlers.EventText {
		return "", false
	}
	return strings.TrimSpace(req.Payload), true
}

// buttonInput returns the argument of a button whose prefix matches.
func buttonInput(req *handlers.Request, prefix string) (string, bool) {
	if req.Kind != handlers.EventButton {
		return "", false
	}
	name, arg, _ := strings.Cut(req.Payload, ":")
	if name != prefix {
		return "", false
	}
	return arg, true
}

// reprompt keeps the session in its current state.
func reprompt(text string, buttons [][]handlers.Button, reason string) (handlers.Response, error) {
	return handlers.Response{Text: text, Buttons: buttons}, fmt.Errorf("%w: %s", store.ErrInvalidInput, reason)
}
