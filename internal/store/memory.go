package store

import (
	"context"
	"sync"

	"callscript/internal/platform"
)

// MemoryStore keeps everything in process. It backs tests and broker-less
// simulator runs.
type MemoryStore struct {
	mu        sync.Mutex
	stats     []platform.StatEntry
	scheduled []platform.ScheduledCall
	sms       []platform.SMS
	storage   map[string]string
	records   map[[2]string]struct{}
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		storage: make(map[string]string),
		records: make(map[[2]string]struct{}),
	}
}

func (s *MemoryStore) LogStat(ctx context.Context, entry platform.StatEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, entry)
	return nil
}

func (s *MemoryStore) ScheduleCall(ctx context.Context, sc platform.ScheduledCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, sc)
	return nil
}

func (s *MemoryStore) SaveSMS(ctx context.Context, sms platform.SMS) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sms = append(s.sms, sms)
	return nil
}

func (s *MemoryStore) StorageGet(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.storage[key]
	return v, ok, nil
}

func (s *MemoryStore) HasRecord(ctx context.Context, name, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[[2]string{name, value}]
	return ok, nil
}

// SetStorage seeds a user-storage key.
func (s *MemoryStore) SetStorage(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage[key] = value
}

// AddRecord seeds an agent record; use an empty value for plain prompts.
func (s *MemoryStore) AddRecord(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[[2]string{name, value}] = struct{}{}
}

// Stats returns a copy of every logged entry.
func (s *MemoryStore) Stats() []platform.StatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]platform.StatEntry, len(s.stats))
	copy(out, s.stats)
	return out
}

// StatsForCall returns the entries of one call in insertion order.
func (s *MemoryStore) StatsForCall(ctx context.Context, callID string) ([]platform.StatEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []platform.StatEntry
	for _, entry := range s.stats {
		if entry.CallID == callID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Scheduled returns a copy of the outbound call queue.
func (s *MemoryStore) Scheduled() []platform.ScheduledCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]platform.ScheduledCall, len(s.scheduled))
	copy(out, s.scheduled)
	return out
}

// SentSMS returns a copy of the SMS outbox.
func (s *MemoryStore) SentSMS() []platform.SMS {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]platform.SMS, len(s.sms))
	copy(out, s.sms)
	return out
}
