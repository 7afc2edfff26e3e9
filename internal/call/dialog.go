package call

import (
	"errors"
	"fmt"
	"sync"
)

// ErrFieldNotMutable reports a write to a read-only dialog attribute.
var ErrFieldNotMutable = errors.New("field not mutable")

// DialogResult is the delivery state of the dialog record.
type DialogResult string

const (
	ResultCreated DialogResult = ""
	ResultQueued  DialogResult = "queued"
	ResultPending DialogResult = "pending"
	ResultDone    DialogResult = "done"
)

// Dialog carries the dialog-level attributes of a call. MSISDN is fixed when
// the dialog is created; entry point and result are the only writable
// fields, and writes to anything else fail with ErrFieldNotMutable.
type Dialog struct {
	mu         sync.RWMutex
	msisdn     string
	entryPoint string
	result     DialogResult
}

func NewDialog(msisdn, entryPoint string) *Dialog {
	return &Dialog{msisdn: msisdn, entryPoint: entryPoint}
}

func (d *Dialog) MSISDN() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.msisdn
}

func (d *Dialog) EntryPoint() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entryPoint
}

func (d *Dialog) Result() DialogResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.result
}

func (d *Dialog) SetEntryPoint(v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entryPoint = v
}

func (d *Dialog) SetResult(v DialogResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = v
}

// SetField writes an attribute by name, rejecting read-only and unknown
// fields with ErrFieldNotMutable.
func (d *Dialog) SetField(name, value string) error {
	switch name {
	case "entry_point":
		d.SetEntryPoint(value)
		return nil
	case "result":
		d.SetResult(DialogResult(value))
		return nil
	default:
		return fmt.Errorf("dialog attribute %q: %w", name, ErrFieldNotMutable)
	}
}

// Snapshot returns the attributes as a plain mapping for logging.
func (d *Dialog) Snapshot() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return map[string]string{
		"msisdn":      d.msisdn,
		"entry_point": d.entryPoint,
		"result":      string(d.result),
	}
}
