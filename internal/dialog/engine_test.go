package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"callscript/internal/call"
)

type statRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *statRecorder) Log(ctx context.Context, name, data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, name+"="+data)
	return nil
}

func (r *statRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *call.Call, *statRecorder) {
	t.Helper()
	c := call.New(call.Config{MSISDN: "79990001122"}, nil)
	if err := c.SetState(call.Running); err != nil {
		t.Fatalf("answer: %v", err)
	}
	stats := &statRecorder{}
	return NewEngine(c, stats, nil), c, stats
}

func TestRunWalksUnitChain(t *testing.T) {
	e, _, _ := newTestEngine(t)
	var visited []string
	e.Register("first", func(ctx context.Context) (string, error) {
		visited = append(visited, "first")
		return "second", nil
	})
	e.Register("second", func(ctx context.Context) (string, error) {
		visited = append(visited, "second")
		return "", nil
	})

	if err := e.Run(context.Background(), "first"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(visited) != 2 || visited[0] != "first" || visited[1] != "second" {
		t.Fatalf("visited=%v", visited)
	}
}

func TestRunUnknownUnit(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Register("first", func(ctx context.Context) (string, error) {
		return "missing", nil
	})
	if err := e.Run(context.Background(), "first"); err == nil {
		t.Fatalf("unknown unit did not fail")
	}
}

func TestRunStopsCleanlyWhenCallEnds(t *testing.T) {
	e, c, _ := newTestEngine(t)
	e.Register("first", func(ctx context.Context) (string, error) {
		_ = c.SetState(call.Completing)
		return "second", nil
	})
	e.Register("second", func(ctx context.Context) (string, error) {
		t.Fatalf("unit ran against an ending call")
		return "", nil
	})

	if err := e.Run(context.Background(), "first"); err != nil {
		t.Fatalf("ending call surfaced as error: %v", err)
	}
}

func TestRunSurfacesTerminatedCall(t *testing.T) {
	e, c, _ := newTestEngine(t)
	e.Register("first", func(ctx context.Context) (string, error) {
		_ = c.SetState(call.Terminated)
		return "second", nil
	})
	e.Register("second", func(ctx context.Context) (string, error) { return "", nil })

	err := e.Run(context.Background(), "first")
	if !errors.Is(err, call.ErrInvalidCallState) {
		t.Fatalf("err=%v, want ErrInvalidCallState", err)
	}
}

func TestRunPropagatesHandlerErrors(t *testing.T) {
	e, _, _ := newTestEngine(t)
	boom := errors.New("boom")
	e.Register("first", func(ctx context.Context) (string, error) { return "", boom })
	if err := e.Run(context.Background(), "first"); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
}

func TestEnterLogicCeiling(t *testing.T) {
	e, c, stats := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < ExecCountCeiling; i++ {
		if !e.EnterLogic(ctx, "tv_unit") {
			t.Fatalf("entry %d blocked below the ceiling", i+1)
		}
	}
	if e.EnterLogic(ctx, "tv_unit") {
		t.Fatalf("entry past the ceiling allowed")
	}

	count, _ := c.Env().GetInt("tv_unit_exec_count")
	if count != ExecCountCeiling+1 {
		t.Fatalf("exec count=%d, want %d", count, ExecCountCeiling+1)
	}

	entries := stats.all()
	if len(entries) != 1 || entries[0] != "=Recursive execution detected" {
		t.Fatalf("stats=%v", entries)
	}

	// Counters are per unit; another unit starts fresh.
	if !e.EnterLogic(ctx, "hello_unit") {
		t.Fatalf("fresh unit blocked")
	}
}
