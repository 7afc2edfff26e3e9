package call

import (
	"context"
	"errors"
	"testing"
)

func newRunningCall(t *testing.T, policy GuardPolicy) *Call {
	t.Helper()
	c := New(Config{MSISDN: "79990001122", EntryPoint: "hello_main", GuardPolicy: policy}, nil)
	if err := c.SetState(Running); err != nil {
		t.Fatalf("answer call: %v", err)
	}
	return c
}

func TestStateTransitions(t *testing.T) {
	c := New(Config{}, nil)
	if c.State() != Created {
		t.Fatalf("state=%s, want created", c.State())
	}
	if err := c.SetState(Terminated); err != nil {
		t.Fatalf("created -> terminated rejected: %v", err)
	}
	if err := c.SetState(Running); err == nil {
		t.Fatalf("terminated -> running allowed")
	}
}

func TestLeavingRunningCancelsContext(t *testing.T) {
	c := newRunningCall(t, SkipWhenEnding)
	runCtx := c.RunningContext()
	if runCtx.Err() != nil {
		t.Fatalf("running context canceled too early")
	}
	if err := c.SetState(Completing); err != nil {
		t.Fatalf("completing: %v", err)
	}
	select {
	case <-runCtx.Done():
	default:
		t.Fatalf("running context still live after completing")
	}
}

func TestCheckStateSkipWhenEnding(t *testing.T) {
	c := newRunningCall(t, SkipWhenEnding)
	if err := c.CheckState(); err != nil {
		t.Fatalf("running call gated: %v", err)
	}

	_ = c.SetState(Completing)
	if err := c.CheckState(); !errors.Is(err, ErrCallEnding) {
		t.Fatalf("err=%v, want ErrCallEnding", err)
	}

	_ = c.SetState(Terminated)
	if err := c.CheckState(); !errors.Is(err, ErrInvalidCallState) {
		t.Fatalf("err=%v, want ErrInvalidCallState", err)
	}
}

func TestCheckStateErrorWhenEnding(t *testing.T) {
	c := newRunningCall(t, ErrorWhenEnding)
	_ = c.SetState(Completing)
	if err := c.CheckState(); !errors.Is(err, ErrInvalidCallState) {
		t.Fatalf("err=%v, want ErrInvalidCallState", err)
	}
}

func TestGuardSkipsActionBody(t *testing.T) {
	c := newRunningCall(t, SkipWhenEnding)
	ran := 0
	action := c.Guard(func(ctx context.Context) error {
		ran++
		return nil
	})

	if err := action(context.Background()); err != nil {
		t.Fatalf("guarded action on running call: %v", err)
	}
	_ = c.SetState(Completing)
	if err := action(context.Background()); !errors.Is(err, ErrCallEnding) {
		t.Fatalf("err=%v, want ErrCallEnding", err)
	}
	if ran != 1 {
		t.Fatalf("ran=%d, want 1", ran)
	}
}

func TestTranscription(t *testing.T) {
	c := newRunningCall(t, SkipWhenEnding)
	c.AppendTurn(TurnBot, "hello_main_prompt")
	c.AppendTurn(TurnHuman, "i have a payment problem")

	turns := c.Transcription()
	if len(turns) != 2 {
		t.Fatalf("turns=%d, want 2", len(turns))
	}
	if turns[0].Role != TurnBot || turns[1].Role != TurnHuman {
		t.Fatalf("roles=%s,%s", turns[0].Role, turns[1].Role)
	}

	want := "bot: hello_main_prompt; human: i have a payment problem"
	if got := c.TranscriptionText(); got != want {
		t.Fatalf("text=%q, want %q", got, want)
	}
}

func TestCountersFetchThenApply(t *testing.T) {
	c := NewCounters()
	if got := c.Inc("hello_null"); got != 0 {
		t.Fatalf("first inc=%d, want 0", got)
	}
	if got := c.Inc("hello_null"); got != 1 {
		t.Fatalf("second inc=%d, want 1", got)
	}
	if got := c.Get("hello_null"); got != 2 {
		t.Fatalf("stored=%d, want 2", got)
	}
	if got := c.Dec("hello_null"); got != 2 {
		t.Fatalf("dec returned=%d, want 2", got)
	}
	if got := c.Get("hello_null"); got != 1 {
		t.Fatalf("after dec=%d, want 1", got)
	}
}

func TestDefaultsMissingKey(t *testing.T) {
	d := NewDefaults()
	d.SetSection(SectionListen, map[string]int{"no_input_timeout": 6000})

	if v, err := d.Int(SectionListen, "no_input_timeout"); err != nil || v != 6000 {
		t.Fatalf("got (%d,%v), want (6000,nil)", v, err)
	}
	_, err := d.Int(SectionListen, "recognition_timeout")
	if !errors.Is(err, ErrMissingDefault) {
		t.Fatalf("err=%v, want ErrMissingDefault", err)
	}
}

func TestDefaultsSectionMerge(t *testing.T) {
	d := NewDefaults()
	d.SetSection(SectionRandomSound, map[string]int{"min_delay": 1000, "max_delay": 5000})
	d.SetSection(SectionRandomSound, map[string]int{"max_delay": 3000})

	if v, _ := d.Int(SectionRandomSound, "min_delay"); v != 1000 {
		t.Fatalf("min_delay=%d, want kept", v)
	}
	if v, _ := d.Int(SectionRandomSound, "max_delay"); v != 3000 {
		t.Fatalf("max_delay=%d, want overwritten", v)
	}
}
