// Package call owns the per-call context: lifecycle state, the environment
// and counter tables, default settings, dialog attributes and the call-state
// guard. Exactly one worker owns a Call; cross-call state is never shared.
package call

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TurnRole tags a transcription turn.
type TurnRole string

const (
	TurnBot   TurnRole = "bot"
	TurnHuman TurnRole = "human"
)

// Turn is one line of the call transcription.
type Turn struct {
	Role    TurnRole `json:"type"`
	Message string   `json:"message"`
}

// Config sets up a new call.
type Config struct {
	MSISDN      string
	EntryPoint  string
	GuardPolicy GuardPolicy
}

// Call is the per-call context. All dialog units, listen sessions and
// playback actions for one call hang off it.
type Call struct {
	id        string
	startedAt time.Time
	logger    *slog.Logger

	env      *Env
	counters *Counters
	defaults *Defaults
	dialog   *Dialog

	guardPolicy GuardPolicy

	mu         sync.RWMutex
	state      State
	answeredAt time.Time
	transcript []Turn

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, logger *slog.Logger) *Call {
	if logger == nil {
		logger = slog.Default()
	}
	runCtx, runCancel := context.WithCancel(context.Background())
	c := &Call{
		id:          uuid.NewString(),
		startedAt:   time.Now(),
		logger:      logger,
		env:         NewEnv(),
		counters:    NewCounters(),
		defaults:    NewDefaults(),
		dialog:      NewDialog(cfg.MSISDN, cfg.EntryPoint),
		guardPolicy: cfg.GuardPolicy,
		state:       Created,
		runCtx:      runCtx,
		runCancel:   runCancel,
	}
	return c
}

func (c *Call) ID() string          { return c.id }
func (c *Call) Logger() *slog.Logger { return c.logger }
func (c *Call) Env() *Env           { return c.env }
func (c *Call) Counters() *Counters { return c.counters }
func (c *Call) Defaults() *Defaults { return c.defaults }
func (c *Call) Dialog() *Dialog     { return c.dialog }

// State returns the current lifecycle state.
func (c *Call) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState moves the call through its lifecycle. Leaving Running cancels
// RunningContext, which stops in-flight listen sessions and playback.
func (c *Call) SetState(to State) error {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return nil
	}
	if !validTransition(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("call %s: invalid transition %s -> %s", c.id, from, to)
	}
	c.state = to
	if to == Running {
		c.answeredAt = time.Now()
	}
	c.mu.Unlock()

	if from == Running {
		c.runCancel()
	}
	c.logger.Info("call state changed", "call_id", c.id, "from", from.String(), "to", to.String())
	return nil
}

// RunningContext is canceled the moment the call leaves Running. Blocking
// actions derive from it so that hangup stops them at the next checkpoint.
func (c *Call) RunningContext() context.Context {
	return c.runCtx
}

// Duration is the time since the call was answered, zero before that.
func (c *Call) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.answeredAt.IsZero() {
		return 0
	}
	return time.Since(c.answeredAt)
}

// AppendTurn records one transcription line.
func (c *Call) AppendTurn(role TurnRole, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = append(c.transcript, Turn{Role: role, Message: message})
}

// Transcription returns a copy of the raw transcript.
func (c *Call) Transcription() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// TranscriptionText renders the transcript as "role: message" lines joined
// with "; ".
func (c *Call) TranscriptionText() string {
	turns := c.Transcription()
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, fmt.Sprintf("%s: %s", t.Role, t.Message))
	}
	return strings.Join(parts, "; ")
}
