package voice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"callscript/internal/call"
	"callscript/internal/detect"
	"callscript/internal/listen"
	"callscript/internal/media"
	"callscript/internal/nlu"
)

type harness struct {
	call    *call.Call
	player  *media.FakePlayer
	streams *media.FakeStreamFactory
	voice   *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := call.New(call.Config{MSISDN: "79990001122"}, nil)
	if err := c.SetState(call.Running); err != nil {
		t.Fatalf("answer: %v", err)
	}
	c.Defaults().SetSection(call.SectionListen, map[string]int{
		KeyNoInputTimeout:        100,
		KeyRecognitionTimeout:    2000,
		KeySpeechCompleteTimeout: 60,
		KeyASRCompleteTimeout:    200,
	})

	player := media.NewFakePlayer()
	streams := media.NewFakeStreamFactory()
	extractor := nlu.NewPatternExtractor([]nlu.Rule{
		{Kind: nlu.RuleEntity, Name: "operator", Value: "true", Phrases: []string{"operator"}},
	})
	return &harness{
		call:    c,
		player:  player,
		streams: streams,
		voice:   NewService(c, player, streams, extractor, nil),
	}
}

func TestSayRecordsBotTurn(t *testing.T) {
	h := newHarness(t)
	if err := h.voice.Say(context.Background(), "hello_main_prompt"); err != nil {
		t.Fatalf("say: %v", err)
	}

	actions := h.player.Actions()
	if len(actions) != 1 || actions[0].Kind != media.KindPrompt || actions[0].Name != "hello_main_prompt" {
		t.Fatalf("actions=%v", actions)
	}
	turns := h.call.Transcription()
	if len(turns) != 1 || turns[0].Role != call.TurnBot {
		t.Fatalf("turns=%v", turns)
	}
}

func TestBargeInCancelsPlayback(t *testing.T) {
	h := newHarness(t)
	h.player.PlayDuration = 5 * time.Second

	session, err := h.voice.Listen(context.Background(), ListenOptions{
		Policy: detect.ByEntities("operator"),
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		h.streams.Push(listen.Event{Text: "operator please", Final: true})
	}()

	start := time.Now()
	if err := h.voice.Say(context.Background(), "long_prompt"); err != nil {
		t.Fatalf("interrupted say returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("playback was not interrupted, took %v", elapsed)
	}

	result := h.voice.EndListen(context.Background(), session)
	if !result.HasEntity("operator") {
		t.Fatalf("operator entity missing")
	}
	if session.Reason() != listen.ReasonTripped {
		t.Fatalf("reason=%s, want tripped", session.Reason())
	}

	actions := h.player.Actions()
	if len(actions) != 1 || !actions[0].Interrupted {
		t.Fatalf("actions=%v, want one interrupted prompt", actions)
	}

	// bot turn from Say plus human turn sealed at EndListen
	turns := h.call.Transcription()
	if len(turns) != 2 || turns[1].Role != call.TurnHuman || turns[1].Message != "operator please" {
		t.Fatalf("turns=%v", turns)
	}
}

func TestCustomDetectorOverridesPolicy(t *testing.T) {
	h := newHarness(t)
	h.player.PlayDuration = 5 * time.Second
	h.voice.SetDetector(func(utterance string, entities, intents map[string]string) bool {
		return strings.Contains(utterance, "stop right there")
	})

	// The empty policy never trips; only the installed predicate can.
	session, err := h.voice.Listen(context.Background(), ListenOptions{})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		h.streams.Push(listen.Event{Text: "stop right there", Final: true})
	}()

	start := time.Now()
	if err := h.voice.Say(context.Background(), "long_prompt"); err != nil {
		t.Fatalf("interrupted say returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("playback was not interrupted, took %v", elapsed)
	}

	h.voice.EndListen(context.Background(), session)
	if session.Reason() != listen.ReasonTripped {
		t.Fatalf("reason=%s, want tripped", session.Reason())
	}
	actions := h.player.Actions()
	if len(actions) != 1 || !actions[0].Interrupted {
		t.Fatalf("actions=%v, want one interrupted prompt", actions)
	}
}

func TestNestedListenFailsFast(t *testing.T) {
	h := newHarness(t)
	session, err := h.voice.Listen(context.Background(), ListenOptions{Policy: detect.ByCharCount(500)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer h.voice.EndListen(context.Background(), session)

	if _, err := h.voice.Listen(context.Background(), ListenOptions{}); !errors.Is(err, ErrNestedListen) {
		t.Fatalf("err=%v, want ErrNestedListen", err)
	}
}

func TestListenRequiresTimingDefaults(t *testing.T) {
	h := newHarness(t)
	bare := call.New(call.Config{}, nil)
	_ = bare.SetState(call.Running)
	v := NewService(bare, h.player, h.streams, nlu.NewPatternExtractor(nil), nil)

	_, err := v.Listen(context.Background(), ListenOptions{})
	if !errors.Is(err, call.ErrMissingDefault) {
		t.Fatalf("err=%v, want ErrMissingDefault", err)
	}
}

func TestExplicitTimingsOverrideDefaults(t *testing.T) {
	h := newHarness(t)
	session, err := h.voice.Listen(context.Background(), ListenOptions{
		Policy: detect.ByCharCount(500),
		Timings: listen.Options{
			NoInputTimeout:        30 * time.Millisecond,
			RecognitionTimeout:    time.Second,
			SpeechCompleteTimeout: 30 * time.Millisecond,
			ASRCompleteTimeout:    50 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatalf("no-input never fired")
	}
	if session.Reason() != listen.ReasonNoInput {
		t.Fatalf("reason=%s", session.Reason())
	}
	h.voice.EndListen(context.Background(), session)
}

func TestEndListenNilSession(t *testing.T) {
	h := newHarness(t)
	if r := h.voice.EndListen(context.Background(), nil); r != nil {
		t.Fatalf("nil session returned a result")
	}
}

func TestDetectSpeechStartStop(t *testing.T) {
	h := newHarness(t)
	if err := h.voice.DetectSpeechStart(context.Background(), ListenOptions{
		Policy: detect.ByCharCount(500),
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.streams.Push(listen.Event{Text: "background speech", Final: true})

	result := h.voice.DetectSpeechStop(context.Background())
	if result == nil {
		t.Fatalf("no result from active session")
	}
	if h.voice.ActiveSession() != nil {
		t.Fatalf("session slot not cleared")
	}
	if h.voice.DetectSpeechStop(context.Background()) != nil {
		t.Fatalf("second stop returned a result")
	}
}

func TestRandomSoundRequiresDelayDefaults(t *testing.T) {
	h := newHarness(t)
	err := h.voice.RandomSound(context.Background(), 0, 0)
	if !errors.Is(err, call.ErrMissingDefault) {
		t.Fatalf("err=%v, want ErrMissingDefault", err)
	}
}

func TestRandomSoundRejectsInvertedBounds(t *testing.T) {
	h := newHarness(t)
	err := h.voice.RandomSound(context.Background(), 200*time.Millisecond, 100*time.Millisecond)
	if err == nil || errors.Is(err, call.ErrMissingDefault) {
		t.Fatalf("err=%v, want inverted bounds error", err)
	}
}

func TestExecAfterDroppedAfterHangup(t *testing.T) {
	h := newHarness(t)
	if err := h.voice.Hangup(context.Background()); err != nil {
		t.Fatalf("hangup: %v", err)
	}

	ran := make(chan struct{}, 1)
	h.voice.ExecAfter(time.Millisecond, func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	})

	select {
	case <-ran:
		t.Fatalf("deferred action ran after the call left its live state")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHangupGatesLaterActions(t *testing.T) {
	h := newHarness(t)
	if err := h.voice.Hangup(context.Background()); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if h.call.State() != call.Completing {
		t.Fatalf("state=%s, want completing", h.call.State())
	}
	if h.player.Hangups() != 1 {
		t.Fatalf("hangups=%d", h.player.Hangups())
	}

	if err := h.voice.Say(context.Background(), "too_late"); !errors.Is(err, call.ErrCallEnding) {
		t.Fatalf("err=%v, want ErrCallEnding", err)
	}
	if len(h.player.Actions()) != 0 {
		t.Fatalf("gated action reached the player")
	}
}

func TestTranscriptionFormats(t *testing.T) {
	h := newHarness(t)
	h.call.AppendTurn(call.TurnBot, "hello")

	raw, err := h.voice.Transcription(TranscriptionFormatRaw)
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	if turns, ok := raw.([]call.Turn); !ok || len(turns) != 1 {
		t.Fatalf("raw=%v", raw)
	}

	txt, err := h.voice.Transcription(TranscriptionFormatTxt)
	if err != nil {
		t.Fatalf("txt: %v", err)
	}
	if txt != "bot: hello" {
		t.Fatalf("txt=%q", txt)
	}

	if _, err := h.voice.Transcription("xml"); err == nil {
		t.Fatalf("unknown format accepted")
	}
}

func TestSetMediaParams(t *testing.T) {
	h := newHarness(t)
	if err := h.voice.SetMediaParam(context.Background(), "asr_model", "street"); err != nil {
		t.Fatalf("set param: %v", err)
	}
	if v, ok := h.voice.MediaParam("asr_model"); !ok || v != "street" {
		t.Fatalf("param=(%q,%v)", v, ok)
	}
	if h.player.Params()["asr_model"] != "street" {
		t.Fatalf("param not pushed to media server")
	}
}
