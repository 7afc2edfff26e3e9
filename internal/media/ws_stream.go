package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"callscript/internal/listen"
)

// WSStreamFactory feeds listen sessions from a websocket speech gateway
// instead of the MQTT hub. Each session dials its own connection with the
// call ID in the query string; the gateway pushes JSON SpeechEvent frames.
type WSStreamFactory struct {
	BaseURL string
}

func (f *WSStreamFactory) NewStream(ctx context.Context, callID string) (listen.Stream, error) {
	if f.BaseURL == "" {
		return nil, fmt.Errorf("speech gateway URL is empty")
	}
	u, err := url.Parse(f.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speech gateway URL: %w", err)
	}
	q := u.Query()
	q.Set("call_id", callID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connect speech gateway: %w", err)
	}

	s := &wsStream{
		conn:   conn,
		events: make(chan listen.Event, 16),
		closed: make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

type wsStream struct {
	conn   *websocket.Conn
	events chan listen.Event
	closed chan struct{}
	once   sync.Once
}

func (s *wsStream) readLoop() {
	defer close(s.events)
	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var ev SpeechEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			continue
		}
		select {
		case s.events <- listen.Event{Text: ev.Text, Final: ev.Final}:
		case <-s.closed:
			return
		}
	}
}

func (s *wsStream) Events() <-chan listen.Event { return s.events }

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		err = s.conn.Close()
	})
	return err
}
