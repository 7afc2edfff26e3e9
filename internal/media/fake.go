package media

import (
	"context"
	"sync"
	"time"

	"callscript/internal/listen"
)

// FakeAction records one playback action seen by the fake transport.
type FakeAction struct {
	Kind        string
	Name        string
	Value       string
	Text        string
	Interrupted bool
}

// FakePlayer is the in-process media transport used by tests and the
// simulator. Blocking actions hold for PlayDuration (zero by default) and
// honor ctx cancellation the way the real media server honors a stop.
type FakePlayer struct {
	PlayDuration time.Duration

	mu      sync.Mutex
	actions []FakeAction
	hangups int
	params  map[string]string
}

func NewFakePlayer() *FakePlayer {
	return &FakePlayer{params: make(map[string]string)}
}

// Actions returns a copy of everything played so far.
func (p *FakePlayer) Actions() []FakeAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FakeAction, len(p.actions))
	copy(out, p.actions)
	return out
}

// Hangups returns how many hangup commands were issued.
func (p *FakePlayer) Hangups() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hangups
}

// Params returns the last pushed media parameters.
func (p *FakePlayer) Params() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.params))
	for k, v := range p.params {
		out[k] = v
	}
	return out
}

func (p *FakePlayer) record(ctx context.Context, action FakeAction) error {
	var err error
	if p.PlayDuration > 0 {
		t := time.NewTimer(p.PlayDuration)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			action.Interrupted = true
			err = ctx.Err()
		}
	} else if ctxErr := ctx.Err(); ctxErr != nil {
		action.Interrupted = true
		err = ctxErr
	}

	p.mu.Lock()
	p.actions = append(p.actions, action)
	p.mu.Unlock()
	return err
}

func (p *FakePlayer) PlayPrompt(ctx context.Context, callID, name string) error {
	return p.record(ctx, FakeAction{Kind: KindPrompt, Name: name})
}

func (p *FakePlayer) PlayEntity(ctx context.Context, callID, name, value string) error {
	return p.record(ctx, FakeAction{Kind: KindEntity, Name: name, Value: value})
}

func (p *FakePlayer) Synthesize(ctx context.Context, callID, text string, ssml bool) error {
	return p.record(ctx, FakeAction{Kind: KindSynthesize, Text: text})
}

func (p *FakePlayer) SynthesizeTemplate(ctx context.Context, callID string, tpl TemplateSynthesis) error {
	return p.record(ctx, FakeAction{Kind: KindTemplate, Text: tpl.Text})
}

func (p *FakePlayer) PlaySound(ctx context.Context, callID, name string) error {
	return p.record(ctx, FakeAction{Kind: KindSound, Name: name})
}

func (p *FakePlayer) Background(ctx context.Context, callID, name string) error {
	p.mu.Lock()
	p.actions = append(p.actions, FakeAction{Kind: KindBackground, Name: name})
	p.mu.Unlock()
	return nil
}

func (p *FakePlayer) Bridge(ctx context.Context, callID string, req BridgeRequest) error {
	return p.record(ctx, FakeAction{Kind: KindBridge, Name: req.URI, Value: req.Channel})
}

func (p *FakePlayer) Hangup(ctx context.Context, callID string) error {
	p.mu.Lock()
	p.hangups++
	p.mu.Unlock()
	return nil
}

func (p *FakePlayer) UpdateParams(ctx context.Context, callID string, params map[string]string) error {
	p.mu.Lock()
	for k, v := range params {
		p.params[k] = v
	}
	p.mu.Unlock()
	return nil
}

// FakeStreamFactory hands each listen session a stream whose events the
// test or simulator pushes by hand.
type FakeStreamFactory struct {
	mu      sync.Mutex
	streams []*FakeStream
}

func NewFakeStreamFactory() *FakeStreamFactory {
	return &FakeStreamFactory{}
}

func (f *FakeStreamFactory) NewStream(ctx context.Context, callID string) (listen.Stream, error) {
	s := &FakeStream{
		events: make(chan listen.Event, 16),
		closed: make(chan struct{}),
	}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

// Opened returns how many streams were handed out so far.
func (f *FakeStreamFactory) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// Push delivers an event to the most recently opened stream.
func (f *FakeStreamFactory) Push(ev listen.Event) {
	f.mu.Lock()
	var s *FakeStream
	if len(f.streams) > 0 {
		s = f.streams[len(f.streams)-1]
	}
	f.mu.Unlock()
	if s != nil {
		s.Push(ev)
	}
}

// FakeStream is a hand-fed speech stream.
type FakeStream struct {
	events chan listen.Event
	closed chan struct{}
	once   sync.Once
}

func (s *FakeStream) Push(ev listen.Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

func (s *FakeStream) Events() <-chan listen.Event { return s.events }

func (s *FakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
