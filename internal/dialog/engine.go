// Package dialog routes a call between named dialog units. A unit handler
// runs one step of the conversation and names the unit to enter next; the
// engine gates every step on call liveness and walks the chain until a
// terminal unit ends the call.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"callscript/internal/call"
)

// ExecCountCeiling bounds how many times one unit's logic may run within a
// single call before the router treats it as a cycle.
const ExecCountCeiling = 10

// Handler executes one dialog unit. It returns the name of the next unit,
// or empty when the dialog is over.
type Handler func(ctx context.Context) (string, error)

// StatsLogger receives dialog-stats entries.
type StatsLogger interface {
	Log(ctx context.Context, name, data string) error
}

// Engine is the per-call dialog router.
type Engine struct {
	call     *call.Call
	stats    StatsLogger
	logger   *slog.Logger
	handlers map[string]Handler
}

func NewEngine(c *call.Call, stats StatsLogger, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		call:     c,
		stats:    stats,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register binds a unit name to its handler.
func (e *Engine) Register(name string, h Handler) {
	e.handlers[name] = h
}

// Registered reports whether a unit exists.
func (e *Engine) Registered(name string) bool {
	_, ok := e.handlers[name]
	return ok
}

// Run walks the dialog from the entry unit. A call that ends mid-dialog
// stops the walk cleanly; scripting errors (unknown unit, nested listen,
// missing defaults) abort it.
func (e *Engine) Run(ctx context.Context, entry string) error {
	name := entry
	for name != "" {
		h, ok := e.handlers[name]
		if !ok {
			return fmt.Errorf("dialog unit %q is not registered", name)
		}

		if err := e.call.CheckState(); err != nil {
			return e.stopOnState(name, err)
		}

		next, err := h(ctx)
		if err != nil {
			if errors.Is(err, call.ErrCallEnding) || errors.Is(err, call.ErrInvalidCallState) {
				return e.stopOnState(name, err)
			}
			e.logger.Error("dialog unit failed", "call_id", e.call.ID(), "unit", name, "error", err)
			return err
		}
		name = next
	}
	return nil
}

// stopOnState ends the walk when the call left its live state. Expected
// while the call is ending; stale use after teardown is surfaced.
func (e *Engine) stopOnState(unit string, err error) error {
	if errors.Is(err, call.ErrInvalidCallState) && e.call.State() == call.Terminated {
		return err
	}
	e.logger.Info("dialog stopped, call no longer live",
		"call_id", e.call.ID(), "unit", unit, "state", e.call.State().String())
	return nil
}

// EnterLogic counts one entry into a unit's logic function and reports
// whether processing may continue. Past the ceiling it logs the cycle and
// the unit must return without transitioning.
func (e *Engine) EnterLogic(ctx context.Context, unit string) bool {
	key := unit + "_exec_count"
	env := e.call.Env()
	count, _ := env.GetInt(key)
	count++
	_ = env.Set(key, count)
	if count > ExecCountCeiling {
		e.logger.Warn("recursive execution detected", "call_id", e.call.ID(), "unit", unit, "count", count)
		if e.stats != nil {
			_ = e.stats.Log(ctx, "", "Recursive execution detected")
		}
		return false
	}
	return true
}
