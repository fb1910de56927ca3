// Package flows drives retailer web pages through explicit state machines for the
// operations the JSON APIs cannot cover: interactive login, slot discovery and checkout.
package flows

import (
	"context"
	"fmt"

	"grocery-cli/internal/types"
)

// State is a named step of a browser flow
type State string

// Login states
const (
	StateNavigateLogin   State = "NAVIGATE_LOGIN"
	StateConsentDismiss  State = "CONSENT_DISMISS"
	StateCredentialsFill State = "CREDENTIALS_FILL"
	StateSubmit          State = "SUBMIT"
	StateMFAChallenge    State = "MFA_CHALLENGE"
	StateAuthenticated   State = "AUTHENTICATED"
	StateLoginFailed     State = "LOGIN_FAILED"
)

// Checkout states
const (
	StateLoadBasket        State = "LOAD_BASKET"
	StateValidateMinSpend  State = "VALIDATE_MIN_SPEND"
	StatePreview           State = "PREVIEW"
	StateProceedToCheckout State = "PROCEED_TO_CHECKOUT"
	StateSlotSelection     State = "SLOT_SELECTION"
	StatePaymentCheckpoint State = "PAYMENT_CHECKPOINT"
	StateCompleted         State = "COMPLETED"
	StatePaymentRequired   State = "PAYMENT_REQUIRED"
)

// Slot discovery states
const (
	StateNavigateSlots State = "NAVIGATE_SLOTS"
	StateWaitForSlots  State = "WAIT_FOR_SLOTS"
	StateExtractSlots  State = "EXTRACT_SLOTS"
	StateSlotsLoaded   State = "SLOTS_LOADED"
)

// Flow names, used in logs and diagnostic file names
const (
	FlowLogin    = "login"
	FlowCheckout = "checkout"
	FlowSlots    = "slots"
)

// step runs the work of one state and names the next one. A step that fails may
// still name a next state (e.g. LOGIN_FAILED) so the transition is recorded.
type step func(ctx context.Context) (State, error)

// TransitionFunc observes state changes
type TransitionFunc func(flow string, from, to State)

type machine struct {
	provider     string
	flow         string
	logger       types.Logger
	steps        map[State]step
	terminal     map[State]bool
	history      []State
	onTransition TransitionFunc
}

func newMachine(provider, flow string, logger types.Logger, onTransition TransitionFunc) *machine {
	return &machine{
		provider:     provider,
		flow:         flow,
		logger:       logger,
		steps:        make(map[State]step),
		terminal:     make(map[State]bool),
		onTransition: onTransition,
	}
}

func (m *machine) on(state State, fn step) *machine {
	m.steps[state] = fn
	return m
}

func (m *machine) terminalStates(states ...State) *machine {
	for _, s := range states {
		m.terminal[s] = true
	}
	return m
}

func (m *machine) transition(from, to State) {
	m.logger.Infof("[%s] %s: %s -> %s", m.provider, m.flow, from, to)
	m.history = append(m.history, to)
	if m.onTransition != nil {
		m.onTransition(m.flow, from, to)
	}
}

// run executes steps from start until a terminal state is reached or a step fails.
// It returns the state the machine stopped in.
func (m *machine) run(ctx context.Context, start State) (State, error) {
	state := start
	m.history = append(m.history, start)

	for !m.terminal[state] {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		fn, ok := m.steps[state]
		if !ok {
			return state, fmt.Errorf("%s flow has no step for state %s", m.flow, state)
		}

		next, err := fn(ctx)
		if next != "" && next != state {
			m.transition(state, next)
			state = next
		}
		if err != nil {
			return state, err
		}
	}

	return state, nil
}
