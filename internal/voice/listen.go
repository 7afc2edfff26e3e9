package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callscript/internal/call"
	"callscript/internal/detect"
	"callscript/internal/listen"
	"callscript/internal/nlu"
)

// ErrNestedListen reports a listen session opened while another one is
// active on the same call. This is a scripting error and aborts the unit.
var ErrNestedListen = errors.New("listen session already active")

// Timing keys of the listen defaults section.
const (
	KeyNoInputTimeout        = "no_input_timeout"
	KeyRecognitionTimeout    = "recognition_timeout"
	KeySpeechCompleteTimeout = "speech_complete_timeout"
	KeyASRCompleteTimeout    = "asr_complete_timeout"
)

// ListenOptions configures one listen session. Zero timing fields fall back
// to the call's listen defaults; a value missing from both is a
// configuration error.
type ListenOptions struct {
	Policy       detect.Policy
	Entities     nlu.Filter
	Intents      nlu.Filter
	Context      string
	UseRemoteAPI bool
	Timings      listen.Options
}

// Listen opens the call's recognition scope and returns the session
// immediately, its Result handle filling in as the caller keeps issuing
// playback actions. Exactly one session may be open per call; the caller
// must finish the scope with EndListen on every exit path.
func (v *Service) Listen(ctx context.Context, opts ListenOptions) (*listen.Session, error) {
	if err := v.call.CheckState(); err != nil {
		return nil, err
	}
	timings, err := v.resolveTimings(opts.Timings)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	if v.active != nil {
		v.mu.Unlock()
		return nil, fmt.Errorf("%w: call %s", ErrNestedListen, v.call.ID())
	}
	detector := v.detector
	interruptCtx, interruptFn := context.WithCancel(context.Background())
	v.interrupt = interruptCtx
	v.interruptFn = interruptFn
	v.mu.Unlock()

	stream, err := v.streams.NewStream(v.call.RunningContext(), v.call.ID())
	if err != nil {
		v.clearSession()
		return nil, fmt.Errorf("open speech stream: %w", err)
	}

	session, err := listen.Start(v.call.RunningContext(), listen.Config{
		CallID:       v.call.ID(),
		Policy:       opts.Policy,
		Detector:     detector,
		Entities:     opts.Entities,
		Intents:      opts.Intents,
		Context:      opts.Context,
		UseRemoteAPI: opts.UseRemoteAPI,
		Options:      timings,
		Extractor:    v.extractor,
		Logger:       v.logger,
	}, stream, func(listen.StopReason) { interruptFn() })
	if err != nil {
		_ = stream.Close()
		v.clearSession()
		return nil, err
	}

	v.mu.Lock()
	v.active = session
	v.mu.Unlock()
	return session, nil
}

// EndListen closes the scope: waits for the session to stop, seals the
// result, records the caller's utterance in the transcript and frees the
// session slot. Safe on every exit path, including after errors.
func (v *Service) EndListen(ctx context.Context, session *listen.Session) *nlu.Result {
	if session == nil {
		return nil
	}
	_ = session.Close(ctx)

	result := session.Result()
	if text, ok := result.Utterance(); ok && text != "" {
		v.call.AppendTurn(call.TurnHuman, text)
	}

	v.mu.Lock()
	if v.active == session {
		v.active = nil
		v.interrupt = nil
		v.interruptFn = nil
	}
	v.mu.Unlock()
	return result
}

// DetectSpeechStart is the non-scoped variant of Listen: recognition runs in
// the background until DetectSpeechStop or a session stop condition.
func (v *Service) DetectSpeechStart(ctx context.Context, opts ListenOptions) error {
	_, err := v.Listen(ctx, opts)
	return err
}

// DetectSpeechStop ends a DetectSpeechStart session and returns its frozen
// result, or nil when no session is active.
func (v *Service) DetectSpeechStop(ctx context.Context) *nlu.Result {
	v.mu.Lock()
	session := v.active
	v.mu.Unlock()
	if session == nil {
		return nil
	}
	session.Stop()
	return v.EndListen(ctx, session)
}

// ActiveSession exposes the open session, mainly for tests.
func (v *Service) ActiveSession() *listen.Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *Service) clearSession() {
	v.mu.Lock()
	if v.interruptFn != nil {
		v.interruptFn()
	}
	v.active = nil
	v.interrupt = nil
	v.interruptFn = nil
	v.mu.Unlock()
}

func (v *Service) resolveTimings(explicit listen.Options) (listen.Options, error) {
	out := explicit
	var err error
	if out.NoInputTimeout, err = v.resolveTiming(out.NoInputTimeout, KeyNoInputTimeout); err != nil {
		return out, err
	}
	if out.RecognitionTimeout, err = v.resolveTiming(out.RecognitionTimeout, KeyRecognitionTimeout); err != nil {
		return out, err
	}
	if out.SpeechCompleteTimeout, err = v.resolveTiming(out.SpeechCompleteTimeout, KeySpeechCompleteTimeout); err != nil {
		return out, err
	}
	if out.ASRCompleteTimeout, err = v.resolveTiming(out.ASRCompleteTimeout, KeyASRCompleteTimeout); err != nil {
		return out, err
	}
	return out, nil
}

func (v *Service) resolveTiming(d time.Duration, key string) (time.Duration, error) {
	if d > 0 {
		return d, nil
	}
	ms, err := v.call.Defaults().Int(call.SectionListen, key)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
