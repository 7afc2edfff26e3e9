package call

import (
	"context"
	"errors"
)

// ErrInvalidCallState signals a gated action invoked against a call that is
// no longer live.
var ErrInvalidCallState = errors.New("invalid call state")

// GuardPolicy decides what happens when a gated action meets a call that has
// left Running but is not yet Terminated. Actions against a Terminated call
// always fail: by then only stale references can still hold the call.
type GuardPolicy int

const (
	// SkipWhenEnding drops the action silently while the call is ending.
	// Ending is expected, so this is the default.
	SkipWhenEnding GuardPolicy = iota
	// ErrorWhenEnding surfaces ErrInvalidCallState as soon as the call
	// leaves Running.
	ErrorWhenEnding
)

// Action is a dialog action subject to call-state gating.
type Action func(ctx context.Context) error

// Guard wraps an action so its body only runs while the call is Running.
// Wrapping is composable: stacking guards just re-checks the state, it never
// deadlocks or double-executes.
func (c *Call) Guard(action Action) Action {
	return func(ctx context.Context) error {
		if err := c.CheckState(); err != nil {
			return err
		}
		return action(ctx)
	}
}

// CheckState applies the guard policy to the current state. nil means the
// action may proceed or, under SkipWhenEnding, that an ending call absorbed
// it.
func (c *Call) CheckState() error {
	switch state := c.State(); {
	case state == Running:
		return nil
	case state.Ending() && c.guardPolicy == SkipWhenEnding:
		c.logger.Debug("action skipped, call ending", "call_id", c.id, "state", state.String())
		return ErrCallEnding
	default:
		return ErrInvalidCallState
	}
}

// ErrCallEnding reports an action absorbed by an ending call under
// SkipWhenEnding. Routing treats it as a clean stop, not a failure.
var ErrCallEnding = errors.New("call ending, action skipped")
