package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wailsapp/wails/v2/pkg/logger"

	"scribedesk/internal/domain"
	"scribedesk/internal/platform/logging"
	"scribedesk/internal/ports"
)

// DefaultReconnectDelay is the fixed pause between connection attempts.
const DefaultReconnectDelay = 3 * time.Second

type Handlers = ports.ChangeHandlers

// Config controls the push channel.
type Config struct {
	URL            string
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

// Transport keeps exactly one websocket open to the backend and reconnects
// after a fixed delay whenever it drops. It never sends application messages.
type Transport struct {
	cfg      Config
	handlers Handlers
	log      logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	live    bool
	lastErr error
}

func NewTransport(cfg Config, handlers Handlers, log logger.Logger) *Transport {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Transport{
		cfg:      cfg,
		handlers: handlers,
		log:      logging.Prefixed(log, "livesync"),
	}
}

// Start runs the connection loop in the background. Calling Start on a
// running transport does nothing.
func (t *Transport) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go func() {
		defer close(done)
		t.run(runCtx)
	}()
}

// Close stops the loop and waits for the connection to shut down.
func (t *Transport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Live reports whether a connection is currently open.
func (t *Transport) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// LastError returns the most recent connection failure, if any.
func (t *Transport) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Transport) run(ctx context.Context) {
	for {
		err := t.connectAndRead(ctx)
		t.setLive(false)
		if ctx.Err() != nil {
			return
		}
		t.recordErr(err)

		timer := time.NewTimer(t.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (t *Transport) connectAndRead(ctx context.Context) error {
	conn, _, err := t.cfg.Dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to change channel: %w", err)
	}
	defer conn.Close()

	t.setLive(true)
	t.log.Info("connected to " + t.cfg.URL)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read change event: %w", err)
		}
		if err := Dispatch(payload, t.handlers); err != nil {
			t.log.Debug(err.Error())
		}
	}
}

func (t *Transport) setLive(live bool) {
	t.mu.Lock()
	changed := t.live != live
	t.live = live
	t.mu.Unlock()

	if changed && t.handlers.ConnectionChanged != nil {
		t.handlers.ConnectionChanged(live)
	}
}

func (t *Transport) recordErr(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
	t.log.Warning(fmt.Sprintf("%v; retrying in %s", err, t.cfg.ReconnectDelay))
}

type envelope struct {
	Type    domain.ChangeType `json:"type"`
	Payload struct {
		SessionID string `json:"session_id"`
		BlockID   string `json:"block_id"`
	} `json:"payload"`
}

// ErrMalformedEnvelope is returned by Dispatch for payloads that are not a
// change envelope.
var ErrMalformedEnvelope = errors.New("malformed change envelope")

// Dispatch decodes one envelope and invokes the matching handler. Unknown
// types and unit or revision events without a session id are ignored.
func Dispatch(payload []byte, h Handlers) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	sessionID := strings.TrimSpace(env.Payload.SessionID)
	switch env.Type {
	case domain.ChangeSessionCreated, domain.ChangeSessionUpdated, domain.ChangeSessionDeleted:
		if h.SessionsChanged != nil {
			h.SessionsChanged()
		}
	case domain.ChangeBlockCreated, domain.ChangeBlockUpdated, domain.ChangeBlockDeleted:
		if sessionID != "" && h.UnitsChanged != nil {
			h.UnitsChanged(sessionID)
		}
	case domain.ChangeRevisionCreated:
		if sessionID != "" && h.RevisionsChanged != nil {
			h.RevisionsChanged(sessionID)
		}
	case domain.ChangeSettingsUpdated:
		if h.SettingsChanged != nil {
			h.SettingsChanged()
		}
	}
	return nil
}

// DeriveURL turns an http(s) API base into the ws(s) change channel URL.
func DeriveURL(apiBase string) (string, error) {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		base = "http://localhost:8000"
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	parsed, err := url.Parse(strings.TrimRight(base, "/") + "/ws")
	if err != nil {
		return "", fmt.Errorf("invalid API base URL: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid API base URL: unsupported scheme %q", parsed.Scheme)
	}
	return parsed.String(), nil
}
