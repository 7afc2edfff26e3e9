package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"callscript/internal/call"
	"callscript/internal/config"
	"callscript/internal/listen"
	"callscript/internal/media"
	"callscript/internal/nlu"
	"callscript/internal/platform"
	"callscript/internal/script"
	"callscript/internal/store"
	"callscript/internal/voice"
)

// statsStore is the storage surface the server needs beyond platform.Store.
type statsStore interface {
	platform.Store
	StatsForCall(ctx context.Context, callID string) ([]platform.StatEntry, error)
}

// activeCall bundles everything one running call hangs off. streams is set
// only for simulated calls and accepts utterances from the speech endpoint.
type activeCall struct {
	call    *call.Call
	voice   *voice.Service
	script  *script.Script
	streams *media.FakeStreamFactory

	done chan struct{}
	mu   sync.Mutex
	err  error
}

func (a *activeCall) finish(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	close(a.done)
}

func (a *activeCall) runErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// registry tracks calls by ID. Finished calls stay queryable until restart.
type registry struct {
	mu    sync.Mutex
	calls map[string]*activeCall
}

func newRegistry() *registry {
	return &registry{calls: make(map[string]*activeCall)}
}

func (r *registry) add(a *activeCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[a.call.ID()] = a
}

func (r *registry) get(id string) (*activeCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.calls[id]
	return a, ok
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := config.LoadServerConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st statsStore
	if cfg.DBDSN != "" {
		pg, err := store.NewPG(ctx, cfg.DBDSN)
		if err != nil {
			logger.Error("connect db failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("migrate db failed", "error", err)
			os.Exit(1)
		}
		st = pg
	} else {
		logger.Info("no DB_DSN set, using in-memory store")
		st = store.NewMemory()
	}

	var hub *media.Hub
	if cfg.MQTTBrokerURL != "" {
		hub = media.NewHub(media.HubConfig{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, logger)
		if err := hub.Start(ctx); err != nil {
			logger.Error("start media hub failed", "error", err)
			os.Exit(1)
		}
	}

	extractor := nlu.NewPatternExtractor(script.DefaultRules())
	reg := newRegistry()

	startCall := func(msisdn, entry string) (*activeCall, error) {
		c := call.New(call.Config{MSISDN: msisdn, EntryPoint: entry}, logger)
		if err := c.SetState(call.Running); err != nil {
			return nil, err
		}

		var player media.Player
		var streams listen.StreamFactory
		var fakeStreams *media.FakeStreamFactory
		switch {
		case hub != nil:
			player = hub
			streams = hub
			if cfg.SpeechWSBaseURL != "" {
				streams = &media.WSStreamFactory{BaseURL: cfg.SpeechWSBaseURL}
			}
		default:
			fake := media.NewFakePlayer()
			fake.PlayDuration = cfg.PlayTimeout
			fakeStreams = media.NewFakeStreamFactory()
			player = fake
			streams = fakeStreams
		}

		nn := platform.NewService(c, st, platform.Config{
			OutputEntities: cfg.OutputEntities,
			DefaultChannel: cfg.DefaultChannel,
			DefaultPrefix:  cfg.DefaultPrefix,
		}, logger)
		nv := voice.NewService(c, player, streams, extractor, logger)
		sc := script.New(c, nn, nv, logger)

		a := &activeCall{call: c, voice: nv, script: sc, streams: fakeStreams, done: make(chan struct{})}
		reg.add(a)

		go func() {
			err := sc.Run(ctx, entry)
			if err != nil {
				logger.Error("dialog run failed", "call_id", c.ID(), "error", err)
			}
			if c.State() != call.Terminated {
				_ = c.SetState(call.Terminated)
			}
			a.finish(err)
		}()
		return a, nil
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Post("/v1/calls", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			MSISDN     string `json:"msisdn"`
			EntryPoint string `json:"entry_point"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
			return
		}
		if body.MSISDN == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "msisdn is required"})
			return
		}
		entry := body.EntryPoint
		if entry == "" {
			entry = cfg.EntryPoint
		}
		a, err := startCall(body.MSISDN, entry)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"call_id":     a.call.ID(),
			"state":       a.call.State().String(),
			"entry_point": entry,
		})
	})

	r.Post("/v1/calls/{id}/speech", func(w http.ResponseWriter, req *http.Request) {
		a, ok := reg.get(chi.URLParam(req, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown call"})
			return
		}
		if a.streams == nil {
			writeJSON(w, http.StatusConflict, map[string]any{"error": "call is not simulated, speech arrives over the media transport"})
			return
		}
		var body struct {
			Text  string `json:"text"`
			Final bool   `json:"final"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
			return
		}
		a.streams.Push(listen.Event{Text: body.Text, Final: body.Final})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Post("/v1/calls/{id}/hangup", func(w http.ResponseWriter, req *http.Request) {
		a, ok := reg.get(chi.URLParam(req, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown call"})
			return
		}
		if err := a.voice.Hangup(req.Context()); err != nil {
			writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"state": a.call.State().String()})
	})

	r.Get("/v1/calls/{id}", func(w http.ResponseWriter, req *http.Request) {
		a, ok := reg.get(chi.URLParam(req, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown call"})
			return
		}
		resp := map[string]any{
			"call_id":     a.call.ID(),
			"msisdn":      a.call.Dialog().MSISDN(),
			"state":       a.call.State().String(),
			"duration_ms": a.call.Duration().Milliseconds(),
		}
		if err := a.runErr(); err != nil {
			resp["error"] = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/v1/calls/{id}/transcription", func(w http.ResponseWriter, req *http.Request) {
		a, ok := reg.get(chi.URLParam(req, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown call"})
			return
		}
		format := req.URL.Query().Get("format")
		tr, err := a.voice.Transcription(format)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transcription": tr})
	})

	r.Get("/v1/calls/{id}/stats", func(w http.ResponseWriter, req *http.Request) {
		a, ok := reg.get(chi.URLParam(req, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown call"})
			return
		}
		stats, err := st.StatsForCall(req.Context(), a.call.ID())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("callscript server started", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
