package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pkoenig/pushdeck/internal/credentials"
	"github.com/pkoenig/pushdeck/internal/logging"
)

// Reconnect schedule for dropped websockets. The last step repeats
// until the connection comes back.
var reconnectSchedule = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
}

// maxReconnectJitter spreads reconnects out so every watcher on a
// server does not redial in the same instant.
const maxReconnectJitter = 3 * time.Second

// WatcherConfig describes one topic to watch.
type WatcherConfig struct {
	ServerURL string
	Topic     string

	// Credentials may be nil for servers without authentication.
	Credentials *credentials.Credentials

	// Handler receives each message event as it arrives.
	Handler func(Message)
}

// Watcher holds a live websocket subscription to a single topic and
// reconnects with backoff when the connection drops.
type Watcher struct {
	cfg    WatcherConfig
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewWatcher creates a watcher for one topic.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		logger: logging.Component("relay").With().
			Str("topic", cfg.Topic).
			Str("server", logging.Redact(cfg.ServerURL)).
			Logger(),
	}
}

// Run connects and reads until the context is cancelled. It only
// returns early if the topic websocket URL cannot be built.
func (w *Watcher) Run(ctx context.Context) error {
	wsURL, err := WebsocketURL(w.cfg.ServerURL, w.cfg.Topic)
	if err != nil {
		return err
	}

	attempt := 0
	for {
		established, err := w.stream(ctx, wsURL)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			attempt = 0
		}

		delay := reconnectBase(attempt) + time.Duration(rand.Int63n(int64(maxReconnectJitter)))
		w.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Websocket disconnected")

		if err := sleepContext(ctx, delay); err != nil {
			return nil
		}
		attempt++
	}
}

// stream dials and reads messages until the connection fails. It
// reports whether a connection was established at all so the caller
// can reset its backoff.
func (w *Watcher) stream(ctx context.Context, wsURL string) (bool, error) {
	header := http.Header{}
	if w.cfg.Credentials != nil {
		header.Set("Authorization", basicAuth(w.cfg.Credentials))
	}

	conn, resp, err := w.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return false, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		return false, err
	}
	defer conn.Close()

	w.logger.Info().Msg("Websocket connected")

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.Warn().Err(err).Msg("Skipping malformed websocket frame")
			continue
		}
		if msg.Event != EventMessage {
			continue
		}

		w.cfg.Handler(msg)
	}
}

// reconnectBase returns the scheduled delay for the given attempt,
// without jitter.
func reconnectBase(attempt int) time.Duration {
	if attempt >= len(reconnectSchedule) {
		return reconnectSchedule[len(reconnectSchedule)-1]
	}
	return reconnectSchedule[attempt]
}

func basicAuth(creds *credentials.Credentials) string {
	raw := creds.Username + ":" + creds.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
