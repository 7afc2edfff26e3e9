// Package voice is the per-call action surface of the dialog script:
// playback, synthesis, barge-in aware listening, deferred actions and call
// teardown. One Service belongs to exactly one call.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"callscript/internal/call"
	"callscript/internal/detect"
	"callscript/internal/listen"
	"callscript/internal/media"
	"callscript/internal/nlu"
)

// Transcription output formats.
const (
	TranscriptionFormatRaw = "raw"
	TranscriptionFormatTxt = "txt"
)

// Service executes audio actions for one call and owns its single listen
// session slot.
type Service struct {
	call      *call.Call
	player    media.Player
	streams   listen.StreamFactory
	extractor nlu.Extractor
	logger    *slog.Logger

	mu          sync.Mutex
	active      *listen.Session
	interruptFn context.CancelFunc
	interrupt   context.Context
	detector    detect.Detector
	mediaParams map[string]string
}

func NewService(c *call.Call, player media.Player, streams listen.StreamFactory, extractor nlu.Extractor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		call:        c,
		player:      player,
		streams:     streams,
		extractor:   extractor,
		logger:      logger,
		mediaParams: make(map[string]string),
	}
}

// SetDetector installs a caller-supplied barge-in predicate used instead of
// the detect-policy evaluator for subsequent listen sessions.
func (v *Service) SetDetector(d detect.Detector) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.detector = d
}

// playbackContext derives a context canceled by the caller, by the call
// leaving its live state, or by the active listen session interrupting
// playback.
func (v *Service) playbackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stopRun := context.AfterFunc(v.call.RunningContext(), cancel)

	v.mu.Lock()
	interrupt := v.interrupt
	v.mu.Unlock()

	stopInterrupt := func() bool { return true }
	if interrupt != nil {
		stopInterrupt = context.AfterFunc(interrupt, cancel)
	}
	return merged, func() {
		stopRun()
		stopInterrupt()
		cancel()
	}
}

func (v *Service) play(ctx context.Context, botTurn string, action func(ctx context.Context) error) error {
	if err := v.call.CheckState(); err != nil {
		return err
	}
	if botTurn != "" {
		v.call.AppendTurn(call.TurnBot, botTurn)
	}
	playCtx, done := v.playbackContext(ctx)
	defer done()
	err := action(playCtx)
	if playCtx.Err() != nil {
		// Interrupted playback is a normal outcome of barge-in or call
		// end, not a failure of the action itself.
		v.logger.Debug("playback interrupted", "call_id", v.call.ID())
		return nil
	}
	return err
}

// Say plays a named prompt.
func (v *Service) Say(ctx context.Context, name string) error {
	return v.play(ctx, name, func(ctx context.Context) error {
		return v.player.PlayPrompt(ctx, v.call.ID(), name)
	})
}

// SayEntity plays an entity prompt with a runtime value.
func (v *Service) SayEntity(ctx context.Context, name, value string) error {
	return v.play(ctx, name, func(ctx context.Context) error {
		return v.player.PlayEntity(ctx, v.call.ID(), name, value)
	})
}

// Synthesize plays synthesized speech.
func (v *Service) Synthesize(ctx context.Context, text string, ssml bool) error {
	return v.play(ctx, text, func(ctx context.Context) error {
		return v.player.Synthesize(ctx, v.call.ID(), text, ssml)
	})
}

// SynthesizeTemplate plays a template synthesis.
func (v *Service) SynthesizeTemplate(ctx context.Context, tpl media.TemplateSynthesis) error {
	return v.play(ctx, tpl.Text, func(ctx context.Context) error {
		return v.player.SynthesizeTemplate(ctx, v.call.ID(), tpl)
	})
}

// Background starts a looped background file, or stops it when name is
// empty. Never blocks on playback.
func (v *Service) Background(ctx context.Context, name string) error {
	if err := v.call.CheckState(); err != nil {
		return err
	}
	return v.player.Background(ctx, v.call.ID(), name)
}

// RandomSound plays pool sounds at random delays between min and max until
// playback is interrupted. Zero arguments fall back to the random_sound
// defaults; a bound missing from both is a configuration error.
func (v *Service) RandomSound(ctx context.Context, minDelay, maxDelay time.Duration) error {
	if err := v.call.CheckState(); err != nil {
		return err
	}
	var err error
	if minDelay, err = v.resolveDelay(minDelay, "min_delay"); err != nil {
		return err
	}
	if maxDelay, err = v.resolveDelay(maxDelay, "max_delay"); err != nil {
		return err
	}
	if maxDelay < minDelay {
		return fmt.Errorf("random_sound: max_delay %v below min_delay %v", maxDelay, minDelay)
	}

	playCtx, done := v.playbackContext(ctx)
	go func() {
		defer done()
		for {
			delay := minDelay
			if span := maxDelay - minDelay; span > 0 {
				delay += time.Duration(rand.Int63n(int64(span)))
			}
			t := time.NewTimer(delay)
			select {
			case <-playCtx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			if err := v.player.PlaySound(playCtx, v.call.ID(), ""); err != nil {
				return
			}
		}
	}()
	return nil
}

func (v *Service) resolveDelay(d time.Duration, key string) (time.Duration, error) {
	if d > 0 {
		return d, nil
	}
	ms, err := v.call.Defaults().Int(call.SectionRandomSound, key)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ExecAfter schedules an action to run after the delay. The action is gated:
// it is dropped if the call is no longer live when the timer fires, and
// canceled outright when the call ends first.
func (v *Service) ExecAfter(delay time.Duration, action call.Action) {
	runCtx := v.call.RunningContext()
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-runCtx.Done():
			return
		case <-t.C:
		}
		if err := v.call.Guard(action)(runCtx); err != nil {
			v.logger.Debug("deferred action not executed", "call_id", v.call.ID(), "error", err)
		}
	}()
}

// Bridge connects the caller to another number or SIP URI and blocks until
// the bridge ends.
func (v *Service) Bridge(ctx context.Context, req media.BridgeRequest) error {
	return v.play(ctx, "", func(ctx context.Context) error {
		return v.player.Bridge(ctx, v.call.ID(), req)
	})
}

// BridgeToCaller connects this call back to its parent, the other half of
// a hold-and-call pair. The parent call ID travels in the bridge headers so
// the transport can find the held leg.
func (v *Service) BridgeToCaller(ctx context.Context, parentCallID string) error {
	return v.Bridge(ctx, media.BridgeRequest{
		URI: parentCallID,
		ProtoAdditional: map[string]string{
			"X-Parent-Call": parentCallID,
		},
	})
}

// Hangup drops the call. The state moves to Completing; the transport
// confirms Terminated.
func (v *Service) Hangup(ctx context.Context) error {
	if err := v.call.SetState(call.Completing); err != nil {
		return err
	}
	return v.player.Hangup(ctx, v.call.ID())
}

// CallDuration is the time since the call was answered.
func (v *Service) CallDuration() time.Duration {
	return v.call.Duration()
}

// Transcription returns the call transcript, raw or rendered as text.
func (v *Service) Transcription(format string) (any, error) {
	switch format {
	case TranscriptionFormatRaw, "":
		return v.call.Transcription(), nil
	case TranscriptionFormatTxt:
		return v.call.TranscriptionText(), nil
	default:
		return nil, fmt.Errorf("unknown transcription format %q", format)
	}
}

// MediaParam returns one media parameter.
func (v *Service) MediaParam(key string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.mediaParams[key]
	return val, ok
}

// MediaParams returns a copy of all media parameters.
func (v *Service) MediaParams() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]string, len(v.mediaParams))
	for k, val := range v.mediaParams {
		out[k] = val
	}
	return out
}

// SetMediaParam updates one media parameter and pushes it to the media
// server.
func (v *Service) SetMediaParam(ctx context.Context, key, value string) error {
	return v.SetMediaParams(ctx, map[string]string{key: value})
}

// SetMediaParams updates several media parameters at once.
func (v *Service) SetMediaParams(ctx context.Context, params map[string]string) error {
	v.mu.Lock()
	for k, val := range params {
		v.mediaParams[k] = val
	}
	v.mu.Unlock()
	return v.player.UpdateParams(ctx, v.call.ID(), params)
}
