package llmstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/logger"

	"scribedesk/internal/domain"
	"scribedesk/internal/platform/logging"
	"scribedesk/internal/ports"
)

// ErrUnexpectedEnd is returned when the stream closes before the terminal
// marker without an error frame.
var ErrUnexpectedEnd = errors.New("stream ended unexpectedly")

var (
	errSuperseded = errors.New("generation superseded")
	errCancelled  = errors.New("generation cancelled")
)

// FrameError carries the message of an explicit error frame.
type FrameError struct {
	Message string
}

func (e *FrameError) Error() string {
	if e.Message == "" {
		return "generation failed"
	}
	return e.Message
}

// Config controls the generation endpoint.
type Config struct {
	APIBaseURL string
	Path       string
}

// Client implements ports.Generator. At most one generation is in flight;
// starting another supersedes the current one.
type Client struct {
	endpoint string
	http     *http.Client
	log      logger.Logger

	mu     sync.Mutex
	cancel context.CancelCauseFunc
	done   chan struct{}
}

func NewClient(cfg Config, log logger.Logger) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8000"
	}
	if cfg.Path == "" {
		cfg.Path = "/api/llm/chat/stream"
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.APIBaseURL, "/") + cfg.Path,
		// Streams have no read deadline of their own.
		http: &http.Client{Timeout: 0},
		log:  logging.Prefixed(log, "llmstream"),
	}
}

type generateRequest struct {
	Messages []domain.Message `json:"messages"`
}

// Generate runs one generation to completion. Content frames go to onContent
// in arrival order; status frames go to onStatus when it is non-nil. A
// generation superseded by a later call, or stopped with Cancel, returns a
// non-completed outcome and a nil error.
func (c *Client) Generate(
	ctx context.Context,
	messages []domain.Message,
	onContent func(string),
	onStatus func(string),
) (ports.GenerationOutcome, error) {
	genCtx, finish := c.begin(ctx)
	defer finish()

	payload, err := json.Marshal(generateRequest{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(genCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return outcome(genCtx, fmt.Errorf("generation request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("generation request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		if genCtx.Err() != nil {
			return outcome(genCtx, genCtx.Err())
		}

		line, readErr := reader.ReadString('\n')
		if line != "" {
			if genCtx.Err() != nil {
				return outcome(genCtx, genCtx.Err())
			}
			done, err := c.apply(line, onContent, onStatus)
			if err != nil {
				return "", err
			}
			if done {
				return ports.GenerationCompleted, nil
			}
		}

		if readErr != nil {
			if genCtx.Err() != nil {
				return outcome(genCtx, genCtx.Err())
			}
			if errors.Is(readErr, io.EOF) {
				return "", ErrUnexpectedEnd
			}
			return "", fmt.Errorf("read generation stream: %w", readErr)
		}
	}
}

// Cancel aborts the in-flight generation, if any.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel(errCancelled)
	}
}

func (c *Client) apply(line string, onContent func(string), onStatus func(string)) (bool, error) {
	frame, ok, err := DecodeLine(line)
	if err != nil {
		c.log.Warning(fmt.Sprintf("skipping undecodable frame: %v", err))
		return false, nil
	}
	if !ok {
		return false, nil
	}

	switch frame.Kind {
	case domain.FrameKindContent:
		if frame.Text != "" && onContent != nil {
			onContent(frame.Text)
		}
	case domain.FrameKindStatus:
		if onStatus != nil {
			onStatus(frame.Text)
		}
	case domain.FrameKindError:
		return false, &FrameError{Message: frame.Text}
	case domain.FrameKindDone:
		return true, nil
	}
	return false, nil
}

// begin supersedes any in-flight generation and waits for it to unwind so
// two generations never overlap.
func (c *Client) begin(ctx context.Context) (context.Context, func()) {
	genCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	previous := c.done
	if c.cancel != nil {
		c.cancel(errSuperseded)
		c.log.Debug("superseding in-flight generation")
	}
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	if previous != nil {
		<-previous
	}

	return genCtx, func() {
		c.mu.Lock()
		if c.done == done {
			c.cancel = nil
			c.done = nil
		}
		c.mu.Unlock()
		cancel(nil)
		close(done)
	}
}

func outcome(genCtx context.Context, err error) (ports.GenerationOutcome, error) {
	switch cause := context.Cause(genCtx); {
	case errors.Is(cause, errSuperseded):
		return ports.GenerationSuperseded, nil
	case errors.Is(cause, errCancelled):
		return ports.GenerationCancelled, nil
	default:
		return "", err
	}
}
