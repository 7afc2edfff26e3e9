package listen

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"callscript/internal/detect"
	"callscript/internal/nlu"
)

type testStream struct {
	events chan Event
	closed atomic.Bool
}

func newTestStream() *testStream {
	return &testStream{events: make(chan Event, 16)}
}

func (s *testStream) Events() <-chan Event { return s.events }

func (s *testStream) Close() error {
	s.closed.Store(true)
	return nil
}

func testOptions() Options {
	return Options{
		NoInputTimeout:        80 * time.Millisecond,
		RecognitionTimeout:    2 * time.Second,
		SpeechCompleteTimeout: 60 * time.Millisecond,
		ASRCompleteTimeout:    200 * time.Millisecond,
	}
}

func testExtractor() nlu.Extractor {
	return nlu.NewPatternExtractor([]nlu.Rule{
		{Kind: nlu.RuleEntity, Name: "operator", Value: "true", Phrases: []string{"operator"}},
	})
}

func startSession(t *testing.T, ctx context.Context, policy detect.Policy, stream Stream, interrupts *atomic.Int32) *Session {
	t.Helper()
	s, err := Start(ctx, Config{
		CallID:    "test-call",
		Policy:    policy,
		Options:   testOptions(),
		Extractor: testExtractor(),
	}, stream, func(StopReason) { interrupts.Add(1) })
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return s
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("session never stopped, state=%s", s.State())
	}
}

func TestIncompleteTimingsRejected(t *testing.T) {
	opts := testOptions()
	opts.RecognitionTimeout = 0
	_, err := Start(context.Background(), Config{
		Options:   opts,
		Extractor: testExtractor(),
	}, newTestStream(), nil)
	if err == nil {
		t.Fatalf("incomplete timings accepted")
	}
}

func TestTripStopsSessionAndInterruptsPlayback(t *testing.T) {
	stream := newTestStream()
	var interrupts atomic.Int32
	s := startSession(t, context.Background(), detect.ByEntities("operator"), stream, &interrupts)

	stream.events <- Event{Text: "uh give me an"}
	stream.events <- Event{Text: "uh give me an operator", Final: true}
	waitDone(t, s)

	if s.State() != Tripped {
		t.Fatalf("state=%s, want tripped", s.State())
	}
	if s.Reason() != ReasonTripped {
		t.Fatalf("reason=%s", s.Reason())
	}
	if n := interrupts.Load(); n != 1 {
		t.Fatalf("interrupt calls=%d, want 1", n)
	}
	if !s.Result().HasEntity("operator") {
		t.Fatalf("tripping entity missing from result")
	}
	if text, _ := s.Result().Utterance(); text != "uh give me an operator" {
		t.Fatalf("utterance=%q", text)
	}
}

func TestNoInputTimeout(t *testing.T) {
	stream := newTestStream()
	var interrupts atomic.Int32
	s := startSession(t, context.Background(), detect.ByCharCount(500), stream, &interrupts)

	waitDone(t, s)
	if s.State() != TimedOut || s.Reason() != ReasonNoInput {
		t.Fatalf("state=%s reason=%s, want timed_out/no_input_timeout", s.State(), s.Reason())
	}
	if n := interrupts.Load(); n != 1 {
		t.Fatalf("interrupt calls=%d, want 1", n)
	}
	if !stream.closed.Load() {
		t.Fatalf("stream left open")
	}
}

func TestSpeechCompleteAfterFinalEvent(t *testing.T) {
	stream := newTestStream()
	var interrupts atomic.Int32
	s := startSession(t, context.Background(), detect.ByCharCount(500), stream, &interrupts)

	stream.events <- Event{Text: "short answer", Final: true}
	waitDone(t, s)

	if s.Reason() != ReasonSpeechComplete {
		t.Fatalf("reason=%s, want speech_complete", s.Reason())
	}
	if text, _ := s.Result().Utterance(); text != "short answer" {
		t.Fatalf("utterance=%q", text)
	}
}

func TestExplicitStop(t *testing.T) {
	stream := newTestStream()
	var interrupts atomic.Int32
	s := startSession(t, context.Background(), detect.ByCharCount(500), stream, &interrupts)

	stream.events <- Event{Text: "still talking"}
	s.Stop()
	s.Stop() // idempotent
	waitDone(t, s)

	if s.State() != Stopped || s.Reason() != ReasonStopRequested {
		t.Fatalf("state=%s reason=%s", s.State(), s.Reason())
	}
}

func TestCallEndStopsSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := newTestStream()
	var interrupts atomic.Int32
	s := startSession(t, ctx, detect.ByCharCount(500), stream, &interrupts)

	cancel()
	waitDone(t, s)
	if s.State() != CallEnded || s.Reason() != ReasonCallEnded {
		t.Fatalf("state=%s reason=%s", s.State(), s.Reason())
	}
}

func TestCloseSealsResult(t *testing.T) {
	stream := newTestStream()
	var interrupts atomic.Int32
	s := startSession(t, context.Background(), detect.ByCharCount(500), stream, &interrupts)

	stream.events <- Event{Text: "before close", Final: true}
	s.Stop()
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.State() != Closed {
		t.Fatalf("state=%s, want closed", s.State())
	}

	s.Result().SetUtterance("after close")
	if text, _ := s.Result().Utterance(); text != "before close" {
		t.Fatalf("result mutated after close: %q", text)
	}
}

func TestRecognizerStreamEndCountsAsSpeechComplete(t *testing.T) {
	stream := newTestStream()
	var interrupts atomic.Int32
	s := startSession(t, context.Background(), detect.ByCharCount(500), stream, &interrupts)

	stream.events <- Event{Text: "bye"}
	close(stream.events)
	waitDone(t, s)

	if s.Reason() != ReasonSpeechComplete {
		t.Fatalf("reason=%s, want speech_complete", s.Reason())
	}
}
