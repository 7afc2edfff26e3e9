// Package listen implements the scoped recognition session: speech
// recognition racing concurrently playing audio, with policy-driven barge-in
// and a timeout budget. A session hands out its Result at open and freezes
// it at close.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"callscript/internal/detect"
	"callscript/internal/nlu"
)

// Event is one update from the speech stream. Text is the cumulative
// transcript of the current utterance; Final marks utterance end.
type Event struct {
	Text  string
	Final bool
}

// Stream produces transcript events for one call. The channel closes when
// the recognizer finishes on its own.
type Stream interface {
	Events() <-chan Event
	Close() error
}

// StreamFactory opens a speech stream for a call.
type StreamFactory interface {
	NewStream(ctx context.Context, callID string) (Stream, error)
}

// State of a session. Armed covers the whole open scope; every terminal
// state leads to Closed once the scope exits.
type State int

const (
	Idle State = iota
	Armed
	Tripped
	TimedOut
	Stopped
	CallEnded
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Tripped:
		return "tripped"
	case TimedOut:
		return "timed_out"
	case Stopped:
		return "stopped"
	case CallEnded:
		return "call_ended"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StopReason refines the terminal state.
type StopReason int

const (
	ReasonNone StopReason = iota
	ReasonTripped
	ReasonNoInput
	ReasonRecognitionTimeout
	ReasonSpeechComplete
	ReasonStopRequested
	ReasonCallEnded
)

func (r StopReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTripped:
		return "detect_policy_tripped"
	case ReasonNoInput:
		return "no_input_timeout"
	case ReasonRecognitionTimeout:
		return "recognition_timeout"
	case ReasonSpeechComplete:
		return "speech_complete"
	case ReasonStopRequested:
		return "stop_requested"
	case ReasonCallEnded:
		return "call_ended"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Options is the timing budget of a session. Every field is required; the
// caller resolves missing fields from the call's listen defaults before
// starting.
type Options struct {
	NoInputTimeout        time.Duration
	RecognitionTimeout    time.Duration
	SpeechCompleteTimeout time.Duration
	ASRCompleteTimeout    time.Duration
}

func (o Options) validate() error {
	if o.NoInputTimeout <= 0 || o.RecognitionTimeout <= 0 ||
		o.SpeechCompleteTimeout <= 0 || o.ASRCompleteTimeout <= 0 {
		return errors.New("listen: incomplete timing options")
	}
	return nil
}

// Config assembles a session.
type Config struct {
	CallID       string
	Policy       detect.Policy
	Detector     detect.Detector // nil means Policy.Evaluate
	Entities     nlu.Filter
	Intents      nlu.Filter
	Context      string
	UseRemoteAPI bool
	Options      Options
	Extractor    nlu.Extractor
	Logger       *slog.Logger
}

// Session is one open recognition scope.
type Session struct {
	cfg       Config
	stream    Stream
	result    *nlu.Result
	interrupt func(StopReason)

	mu     sync.Mutex
	state  State
	reason StopReason

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Start arms a session. ctx must be the call's running context so the
// session stops when the call leaves its live state. interrupt is invoked
// exactly once per session, at the latest on scope close, to cancel
// concurrent playback.
func Start(ctx context.Context, cfg Config, stream Stream, interrupt func(StopReason)) (*Session, error) {
	if err := cfg.Options.validate(); err != nil {
		return nil, err
	}
	if cfg.Extractor == nil {
		return nil, errors.New("listen: extractor is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Detector == nil {
		cfg.Detector = cfg.Policy.Detector()
	}
	if interrupt == nil {
		interrupt = func(StopReason) {}
	}

	s := &Session{
		cfg:       cfg,
		stream:    stream,
		result:    nlu.NewResult(),
		interrupt: interrupt,
		state:     Armed,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

// Result is the live handle. It mutates while the session runs and is
// frozen once the session reaches a terminal state.
func (s *Session) Result() *nlu.Result { return s.result }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Reason() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done closes when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop requests an explicit stop. Safe to call multiple times.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Close waits for the session to stop, bounding the wait by the ASR
// completion budget, and seals the result. After Close the handle reflects
// everything accumulated up to the stop reason and no longer mutates.
func (s *Session) Close(ctx context.Context) error {
	select {
	case <-s.done:
	case <-ctx.Done():
		s.Stop()
		drain := time.NewTimer(s.cfg.Options.ASRCompleteTimeout)
		defer drain.Stop()
		select {
		case <-s.done:
		case <-drain.C:
		}
	}

	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.result.Freeze()
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	noInput := time.NewTimer(s.cfg.Options.NoInputTimeout)
	defer noInput.Stop()
	overall := time.NewTimer(s.cfg.Options.RecognitionTimeout)
	defer overall.Stop()
	speechComplete := time.NewTimer(s.cfg.Options.SpeechCompleteTimeout)
	if !speechComplete.Stop() {
		<-speechComplete.C
	}
	defer speechComplete.Stop()

	var events <-chan Event
	if s.stream != nil {
		events = s.stream.Events()
	}
	gotInput := false

	for {
		select {
		case <-ctx.Done():
			s.finish(CallEnded, ReasonCallEnded)
			return
		case <-s.stopCh:
			s.finish(Stopped, ReasonStopRequested)
			return
		case <-noInput.C:
			if !gotInput {
				s.finish(TimedOut, ReasonNoInput)
				return
			}
		case <-overall.C:
			s.finish(TimedOut, ReasonRecognitionTimeout)
			return
		case <-speechComplete.C:
			s.finish(TimedOut, ReasonSpeechComplete)
			return
		case ev, ok := <-events:
			if !ok {
				s.finish(Stopped, ReasonSpeechComplete)
				return
			}
			if !gotInput {
				gotInput = true
				noInput.Stop()
			}
			s.apply(ctx, ev)
			if ev.Final {
				resetTimer(speechComplete, s.cfg.Options.SpeechCompleteTimeout)
			}
			if s.evaluate() {
				s.cfg.Logger.Info("detect policy tripped, playback interrupted",
					"call_id", s.cfg.CallID)
				s.finish(Tripped, ReasonTripped)
				return
			}
		}
	}
}

func (s *Session) apply(ctx context.Context, ev Event) {
	if ev.Text != "" {
		s.result.SetUtterance(ev.Text)
		extracted, err := s.cfg.Extractor.Extract(ctx, ev.Text, nlu.ExtractOptions{
			Entities:     s.cfg.Entities,
			Intents:      s.cfg.Intents,
			Context:      s.cfg.Context,
			UseRemoteAPI: s.cfg.UseRemoteAPI,
		})
		if err != nil {
			s.cfg.Logger.Warn("extraction failed", "call_id", s.cfg.CallID, "error", err)
			return
		}
		s.result.MergeEntities(extracted.Entities())
		s.result.MergeIntents(extracted.Intents())
	}
}

func (s *Session) evaluate() bool {
	text, _ := s.result.Utterance()
	return s.cfg.Detector(text, s.result.Entities(), s.result.Intents())
}

// finish moves the session to its terminal state. Playback cancellation is
// guaranteed here on every exit path, whether or not the detector tripped.
func (s *Session) finish(state State, reason StopReason) {
	s.mu.Lock()
	s.state = state
	s.reason = reason
	s.mu.Unlock()

	s.interrupt(reason)
	if reason != ReasonTripped {
		s.cfg.Logger.Debug("listen session stopped",
			"call_id", s.cfg.CallID, "reason", reason.String())
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
