package call

import (
	"errors"
	"testing"
	"time"
)

func TestEnvAllowedKinds(t *testing.T) {
	e := NewEnv()
	for key, v := range map[string]any{
		"name":   "alice",
		"count":  3,
		"ratio":  0.5,
		"agreed": true,
		"when":   time.Now(),
	} {
		if err := e.Set(key, v); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := e.Set("bad", []string{"no"}); err == nil {
		t.Fatalf("slice value accepted")
	}
}

func TestEnvSetNilDeletes(t *testing.T) {
	e := NewEnv()
	_ = e.Set("key", "value")
	if err := e.Set("key", nil); err != nil {
		t.Fatalf("set nil: %v", err)
	}
	if _, ok := e.Get("key"); ok {
		t.Fatalf("nil set did not delete")
	}
	// Deleting an absent key is a no-op.
	e.Delete("ghost")
}

func TestEnvSetManyValidatesFirst(t *testing.T) {
	e := NewEnv()
	err := e.SetMany(map[string]any{"good": 1, "bad": struct{}{}})
	if err == nil {
		t.Fatalf("unsupported value accepted")
	}
	if _, ok := e.Get("good"); ok {
		t.Fatalf("partial SetMany applied")
	}
}

func TestEnvKeysSorted(t *testing.T) {
	e := NewEnv()
	_ = e.Set("b", 1)
	_ = e.Set("a", 2)
	_ = e.Set("c", 3)
	keys := e.Keys()
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("keys=%v", keys)
	}
}

func TestDialogFieldMutability(t *testing.T) {
	d := NewDialog("79990001122", "hello_main")

	if err := d.SetField("entry_point", "payment_main"); err != nil {
		t.Fatalf("entry_point write rejected: %v", err)
	}
	if d.EntryPoint() != "payment_main" {
		t.Fatalf("entry_point=%s", d.EntryPoint())
	}
	if err := d.SetField("result", string(ResultQueued)); err != nil {
		t.Fatalf("result write rejected: %v", err)
	}

	if err := d.SetField("msisdn", "123"); !errors.Is(err, ErrFieldNotMutable) {
		t.Fatalf("msisdn write err=%v, want ErrFieldNotMutable", err)
	}
	if err := d.SetField("unknown", "x"); !errors.Is(err, ErrFieldNotMutable) {
		t.Fatalf("unknown write err=%v, want ErrFieldNotMutable", err)
	}
	if d.MSISDN() != "79990001122" {
		t.Fatalf("msisdn mutated")
	}
}
