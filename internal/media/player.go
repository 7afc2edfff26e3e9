// Package media is the transport boundary to the media server: outbound
// playback commands and inbound playback completions, caller speech and
// hangup events. The production transport is MQTT; tests and the simulator
// use the in-process fake.
package media

import "context"

// TemplateSynthesis describes a template-based synthesis request: a template
// audio file, its transcription, and the slots to replace.
type TemplateSynthesis struct {
	AudioFile    string            `json:"audio_file"`
	Text         string            `json:"text"`
	Replacements map[string]string `json:"replacements,omitempty"`
}

// BridgeRequest connects the caller to another number or SIP URI.
type BridgeRequest struct {
	URI             string            `json:"uri"`
	Channel         string            `json:"channel,omitempty"`
	ProtoAdditional map[string]string `json:"proto_additional,omitempty"`
}

// Player executes audio actions for one call. Blocking methods return when
// the action completes on the media server or when ctx is canceled,
// whichever comes first; cancellation stops playback at the next safe
// checkpoint.
type Player interface {
	// PlayPrompt plays a named prompt from the agent database.
	PlayPrompt(ctx context.Context, callID, name string) error
	// PlayEntity plays an entity prompt with a runtime value.
	PlayEntity(ctx context.Context, callID, name, value string) error
	// Synthesize plays synthesized speech, optionally SSML-marked.
	Synthesize(ctx context.Context, callID, text string, ssml bool) error
	// SynthesizeTemplate plays a template synthesis.
	SynthesizeTemplate(ctx context.Context, callID string, tpl TemplateSynthesis) error
	// PlaySound plays one sound from the agent's sound pool.
	PlaySound(ctx context.Context, callID, name string) error
	// Background starts a looped background file; an empty name stops it.
	// Does not block on playback.
	Background(ctx context.Context, callID, name string) error
	// Bridge connects the caller onward. Does not return until the bridge
	// is torn down or ctx is canceled.
	Bridge(ctx context.Context, callID string, req BridgeRequest) error
	// Hangup drops the call on the media server.
	Hangup(ctx context.Context, callID string) error
	// UpdateParams pushes media parameters (lang, flag, asr/tts engines).
	UpdateParams(ctx context.Context, callID string, params map[string]string) error
}
