// Package platform exposes the network-side collaborator services a dialog
// script consumes: dialog-stats logging, scheduled calls, SMS, user storage
// and agent record checks. The Store interface hides whether they persist to
// Postgres or stay in memory.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"callscript/internal/call"
)

// Dialog-stats actions.
const (
	ActionLog  = "log"
	ActionDump = "dump"
)

// StatEntry is one dialog-stats record.
type StatEntry struct {
	CallID    string
	Action    string
	Name      string
	Data      string
	CreatedAt time.Time
}

// ScheduledCall is a queued outbound call.
type ScheduledCall struct {
	MSISDN           string
	At               time.Time
	Channel          string
	Script           string
	EntryPoint       string
	Transport        string
	OnSuccess        string
	OnFailed         string
	UseDefaultPrefix bool
	ProtoAdditional  map[string]string
	Priority         int
}

// SMS is an outbound text message.
type SMS struct {
	Destination string
	Text        string
	Channel     string
}

// Store persists platform-side state.
type Store interface {
	LogStat(ctx context.Context, entry StatEntry) error
	ScheduleCall(ctx context.Context, sc ScheduledCall) error
	SaveSMS(ctx context.Context, sms SMS) error
	StorageGet(ctx context.Context, key string) (string, bool, error)
	HasRecord(ctx context.Context, name, value string) (bool, error)
}

// Config sets up the platform service for one call.
type Config struct {
	// OutputEntities names the env variables Dump writes to dialog stats.
	OutputEntities []string
	// DefaultChannel is used when a call or SMS names no channel.
	DefaultChannel string
	// DefaultPrefix is prepended to numbers when UseDefaultPrefix is set.
	DefaultPrefix string
}

// Service is the per-call platform client.
type Service struct {
	call   *call.Call
	store  Store
	cfg    Config
	logger *slog.Logger
}

func NewService(c *call.Call, store Store, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{call: c, store: store, cfg: cfg, logger: logger}
}

// Log writes one dialog-stats entry tagged with the current call.
func (s *Service) Log(ctx context.Context, name, data string) error {
	s.logger.Info("dialog stat", "call_id", s.call.ID(), "name", name, "data", data)
	return s.store.LogStat(ctx, StatEntry{
		CallID:    s.call.ID(),
		Action:    ActionLog,
		Name:      name,
		Data:      data,
		CreatedAt: time.Now(),
	})
}

// LogData writes an unnamed dialog-stats entry.
func (s *Service) LogData(ctx context.Context, data string) error {
	return s.Log(ctx, "", data)
}

// Dump writes the configured output entities from the call env to dialog
// stats as one JSON object under the name output_data.
func (s *Service) Dump(ctx context.Context) error {
	env := s.call.Env()
	out := make(map[string]any, len(s.cfg.OutputEntities))
	for _, key := range s.cfg.OutputEntities {
		if v, ok := env.Get(key); ok {
			out[key] = v
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return s.store.LogStat(ctx, StatEntry{
		CallID:    s.call.ID(),
		Action:    ActionDump,
		Name:      "output_data",
		Data:      string(data),
		CreatedAt: time.Now(),
	})
}

// CallRequest queues an outbound call. Date accepts an absolute timestamp
// ("2006-01-02 15:04:05"), a relative offset ("01:30:00" or "01:30"), or
// empty for immediately.
type CallRequest struct {
	MSISDN           string
	Date             string
	Channel          string
	Script           string
	EntryPoint       string
	Transport        string
	OnSuccess        string
	OnFailed         string
	UseDefaultPrefix bool
	ProtoAdditional  map[string]string
	Priority         int
}

// ScheduleCall puts an outbound call on the queue.
func (s *Service) ScheduleCall(ctx context.Context, req CallRequest) error {
	at, err := ParseCallDate(req.Date, time.Now())
	if err != nil {
		return err
	}
	msisdn := req.MSISDN
	if req.UseDefaultPrefix && s.cfg.DefaultPrefix != "" {
		msisdn = s.cfg.DefaultPrefix + msisdn
	}
	channel := req.Channel
	if channel == "" {
		channel = s.cfg.DefaultChannel
	}
	transport := req.Transport
	if transport == "" {
		transport = "sip"
	}
	entryPoint := req.EntryPoint
	if entryPoint == "" {
		entryPoint = "main"
	}
	return s.store.ScheduleCall(ctx, ScheduledCall{
		MSISDN:           msisdn,
		At:               at,
		Channel:          channel,
		Script:           req.Script,
		EntryPoint:       entryPoint,
		Transport:        transport,
		OnSuccess:        req.OnSuccess,
		OnFailed:         req.OnFailed,
		UseDefaultPrefix: req.UseDefaultPrefix,
		ProtoAdditional:  req.ProtoAdditional,
		Priority:         req.Priority,
	})
}

// HoldAndCall queues an immediate second call from the current one; the
// child script bridges back to this caller from its entry point.
func (s *Service) HoldAndCall(ctx context.Context, msisdn, channel, script, entryPoint string) error {
	return s.ScheduleCall(ctx, CallRequest{
		MSISDN:     msisdn,
		Channel:    channel,
		Script:     script,
		EntryPoint: entryPoint,
		ProtoAdditional: map[string]string{
			"X-Parent-Call": s.call.ID(),
		},
	})
}

// SendSMS sends a text message over the named channel.
func (s *Service) SendSMS(ctx context.Context, destination, text, channel string) error {
	if channel == "" {
		channel = s.cfg.DefaultChannel
	}
	if destination == "" {
		return fmt.Errorf("sms destination is empty")
	}
	return s.store.SaveSMS(ctx, SMS{Destination: destination, Text: text, Channel: channel})
}

// Storage returns the values for the given user-data keys; missing keys map
// to empty values.
func (s *Service) Storage(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		v, ok, err := s.store.StorageGet(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = v
		}
	}
	return out, nil
}

// HasRecord checks one prompt (empty value) or entity record in the agent
// database.
func (s *Service) HasRecord(ctx context.Context, name, value string) (bool, error) {
	return s.store.HasRecord(ctx, name, value)
}

// HasRecords checks several prompt names and entity values at once; true
// only when every record exists.
func (s *Service) HasRecords(ctx context.Context, prompts []string, entities map[string]string) (bool, error) {
	for _, name := range prompts {
		ok, err := s.store.HasRecord(ctx, name, "")
		if err != nil || !ok {
			return false, err
		}
	}
	for name, value := range entities {
		ok, err := s.store.HasRecord(ctx, name, value)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
