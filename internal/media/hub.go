package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"callscript/internal/listen"
)

// Playback command kinds on the wire.
const (
	KindPrompt      = "prompt"
	KindEntity      = "entity"
	KindSynthesize  = "synthesize"
	KindTemplate    = "template"
	KindSound       = "sound"
	KindBackground  = "background"
	KindBridge      = "bridge"
)

// PlayCommand is the outbound playback payload.
type PlayCommand struct {
	RequestID    string             `json:"request_id"`
	Kind         string             `json:"kind"`
	Name         string             `json:"name,omitempty"`
	Value        string             `json:"value,omitempty"`
	Text         string             `json:"text,omitempty"`
	SSML         bool               `json:"ssml,omitempty"`
	Template     *TemplateSynthesis `json:"template,omitempty"`
	Bridge       *BridgeRequest     `json:"bridge,omitempty"`
}

// PlayResult is the inbound completion payload.
type PlayResult struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// SpeechEvent is the inbound transcript payload.
type SpeechEvent struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type HubConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Hub is the MQTT media transport. It implements Player for outbound audio
// actions and listen.StreamFactory for inbound caller speech.
type Hub struct {
	cfg    HubConfig
	client paho.Client
	logger *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]chan PlayResult

	speechMu sync.Mutex
	speech   map[string]map[*hubStream]struct{}
}

func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]chan PlayResult),
		speech:  make(map[string]map[*hubStream]struct{}),
	}
}

func (h *Hub) Start(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(h.cfg.BrokerURL).
		SetClientID(h.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if h.cfg.Username != "" {
		opts.SetUsername(h.cfg.Username)
		opts.SetPassword(h.cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		h.logger.Error("mqtt connection lost", "error", err)
	})

	h.client = paho.NewClient(opts)
	if token := h.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	if token := h.client.Subscribe(TopicPlayed(h.cfg.TopicPrefix), 1, h.handlePlayed); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := h.client.Subscribe(TopicSpeech(h.cfg.TopicPrefix), 1, h.handleSpeech); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	go func() {
		<-ctx.Done()
		h.client.Disconnect(100)
	}()
	return nil
}

func (h *Hub) handlePlayed(_ paho.Client, msg paho.Message) {
	requestID := ParseRequestID(msg.Topic())
	if requestID == "" {
		return
	}
	var result PlayResult
	if err := json.Unmarshal(msg.Payload(), &result); err != nil {
		h.logger.Warn("invalid play result", "topic", msg.Topic(), "error", err)
		return
	}
	if result.RequestID == "" {
		result.RequestID = requestID
	}

	h.pendingMu.Lock()
	ch, ok := h.pending[result.RequestID]
	h.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- result:
	default:
	}
}

func (h *Hub) handleSpeech(_ paho.Client, msg paho.Message) {
	callID, err := ParseCallID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid speech topic", "topic", msg.Topic(), "error", err)
		return
	}
	var ev SpeechEvent
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		h.logger.Warn("invalid speech payload", "call_id", callID, "error", err)
		return
	}

	h.speechMu.Lock()
	streams := make([]*hubStream, 0, len(h.speech[callID]))
	for s := range h.speech[callID] {
		streams = append(streams, s)
	}
	h.speechMu.Unlock()

	for _, s := range streams {
		s.deliver(listen.Event{Text: ev.Text, Final: ev.Final})
	}
}

// play publishes one blocking playback command and waits for its completion
// or ctx cancellation. Cancellation sends a stop control so the media server
// halts at its next checkpoint.
func (h *Hub) play(ctx context.Context, callID string, cmd PlayCommand) error {
	cmd.RequestID = uuid.NewString()
	body, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	resultCh := make(chan PlayResult, 1)
	h.pendingMu.Lock()
	h.pending[cmd.RequestID] = resultCh
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, cmd.RequestID)
		h.pendingMu.Unlock()
	}()

	topic := TopicPlay(h.cfg.TopicPrefix, callID, cmd.RequestID)
	if token := h.client.Publish(topic, 1, false, body); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	select {
	case result := <-resultCh:
		if !result.OK {
			return fmt.Errorf("playback %s failed: %s", cmd.Kind, result.Error)
		}
		return nil
	case <-ctx.Done():
		h.control(callID, "stop", nil)
		return ctx.Err()
	}
}

func (h *Hub) control(callID, command string, payload any) error {
	body := []byte(`{}`)
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}
	topic := TopicControl(h.cfg.TopicPrefix, callID, command)
	if token := h.client.Publish(topic, 1, false, body); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (h *Hub) PlayPrompt(ctx context.Context, callID, name string) error {
	return h.play(ctx, callID, PlayCommand{Kind: KindPrompt, Name: name})
}

func (h *Hub) PlayEntity(ctx context.Context, callID, name, value string) error {
	return h.play(ctx, callID, PlayCommand{Kind: KindEntity, Name: name, Value: value})
}

func (h *Hub) Synthesize(ctx context.Context, callID, text string, ssml bool) error {
	return h.play(ctx, callID, PlayCommand{Kind: KindSynthesize, Text: text, SSML: ssml})
}

func (h *Hub) SynthesizeTemplate(ctx context.Context, callID string, tpl TemplateSynthesis) error {
	return h.play(ctx, callID, PlayCommand{Kind: KindTemplate, Template: &tpl})
}

func (h *Hub) PlaySound(ctx context.Context, callID, name string) error {
	return h.play(ctx, callID, PlayCommand{Kind: KindSound, Name: name})
}

func (h *Hub) Background(ctx context.Context, callID, name string) error {
	if name == "" {
		return h.control(callID, "background_stop", nil)
	}
	return h.control(callID, "background_start", PlayCommand{Kind: KindBackground, Name: name})
}

func (h *Hub) Bridge(ctx context.Context, callID string, req BridgeRequest) error {
	return h.play(ctx, callID, PlayCommand{Kind: KindBridge, Bridge: &req})
}

func (h *Hub) Hangup(ctx context.Context, callID string) error {
	return h.control(callID, "hangup", nil)
}

func (h *Hub) UpdateParams(ctx context.Context, callID string, params map[string]string) error {
	return h.control(callID, "params", params)
}

// NewStream subscribes one listen session to the call's speech events.
func (h *Hub) NewStream(ctx context.Context, callID string) (listen.Stream, error) {
	s := &hubStream{
		hub:    h,
		callID: callID,
		events: make(chan listen.Event, 16),
	}
	h.speechMu.Lock()
	if h.speech[callID] == nil {
		h.speech[callID] = make(map[*hubStream]struct{})
	}
	h.speech[callID][s] = struct{}{}
	h.speechMu.Unlock()
	return s, nil
}

type hubStream struct {
	hub    *Hub
	callID string
	events chan listen.Event

	mu     sync.Mutex
	closed bool
}

func (s *hubStream) deliver(ev listen.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		// A stalled session must not block the hub; drop the oldest
		// partial, the next event carries the fuller transcript anyway.
		select {
		case <-s.events:
		default:
		}
		s.events <- ev
	}
}

func (s *hubStream) Events() <-chan listen.Event { return s.events }

func (s *hubStream) Close() error {
	s.hub.speechMu.Lock()
	delete(s.hub.speech[s.callID], s)
	s.hub.speechMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}
