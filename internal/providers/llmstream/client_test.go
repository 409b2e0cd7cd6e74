package llmstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribedesk/internal/domain"
	"scribedesk/internal/platform/logging"
	"scribedesk/internal/ports"
)

func streamServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, flush func())) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		handler(w, r, func() {
			if flusher != nil {
				flusher.Flush()
			}
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFrame(w http.ResponseWriter, payload any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

type collector struct {
	mu      sync.Mutex
	content []string
	status  []string
}

func (c *collector) onContent(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content = append(c.content, text)
}

func (c *collector) onStatus(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = append(c.status, text)
}

func (c *collector) joined() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.content, "")
}

func TestGenerateAppendsContentUntilDone(t *testing.T) {
	t.Parallel()

	var body generateRequest
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeFrame(w, map[string]string{"content": "A"})
		flush()
		writeFrame(w, map[string]string{"content": "B"})
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	client := NewClient(Config{APIBaseURL: srv.URL}, logging.Nop())
	got := &collector{}
	messages := []domain.Message{{Role: domain.RoleUser, Content: "hello"}}

	outcome, err := client.Generate(context.Background(), messages, got.onContent, got.onStatus)
	require.NoError(t, err)
	assert.Equal(t, ports.GenerationCompleted, outcome)
	assert.Equal(t, "AB", got.joined())
	assert.Equal(t, messages, body.Messages)
}

func TestGenerateErrorFrameShortCircuits(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, func(w http.ResponseWriter, _ *http.Request, _ func()) {
		writeFrame(w, map[string]string{"type": "status", "message": "m1"})
		writeFrame(w, map[string]string{"type": "error", "message": "m2"})
		writeFrame(w, map[string]string{"content": "late"})
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	client := NewClient(Config{APIBaseURL: srv.URL}, logging.Nop())
	got := &collector{}

	_, err := client.Generate(context.Background(), nil, got.onContent, got.onStatus)
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.Equal(t, "m2", frameErr.Message)
	assert.Equal(t, []string{"m1"}, got.status)
	assert.Empty(t, got.joined())
}

func TestGenerateUnexpectedEnd(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, func(w http.ResponseWriter, _ *http.Request, _ func()) {
		writeFrame(w, map[string]string{"content": "partial"})
	})

	client := NewClient(Config{APIBaseURL: srv.URL}, logging.Nop())
	got := &collector{}

	_, err := client.Generate(context.Background(), nil, got.onContent, nil)
	require.ErrorIs(t, err, ErrUnexpectedEnd)
	assert.Equal(t, "partial", got.joined())
}

func TestGenerateSkipsUndecodableFrames(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, func(w http.ResponseWriter, _ *http.Request, _ func()) {
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: {not json\n\n")
		writeFrame(w, map[string]string{"content": "ok"})
		fmt.Fprint(w, "data: [DONE]")
	})

	client := NewClient(Config{APIBaseURL: srv.URL}, logging.Nop())
	got := &collector{}

	outcome, err := client.Generate(context.Background(), nil, got.onContent, nil)
	require.NoError(t, err)
	assert.Equal(t, ports.GenerationCompleted, outcome)
	assert.Equal(t, "ok", got.joined())
}

func TestGenerateRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{APIBaseURL: srv.URL}, logging.Nop())
	_, err := client.Generate(context.Background(), nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestSecondGenerateSupersedesFirst(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
		if calls.Add(1) == 1 {
			writeFrame(w, map[string]string{"content": "first"})
			flush()
			<-r.Context().Done()
			return
		}
		writeFrame(w, map[string]string{"content": "second"})
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	client := NewClient(Config{APIBaseURL: srv.URL}, logging.Nop())

	started := make(chan struct{})
	var once sync.Once
	first := &collector{}
	type result struct {
		outcome ports.GenerationOutcome
		err     error
	}
	firstDone := make(chan result, 1)
	go func() {
		outcome, err := client.Generate(context.Background(), nil, func(text string) {
			first.onContent(text)
			once.Do(func() { close(started) })
		}, nil)
		firstDone <- result{outcome, err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first generation never streamed")
	}

	second := &collector{}
	outcome, err := client.Generate(context.Background(), nil, second.onContent, nil)
	require.NoError(t, err)
	assert.Equal(t, ports.GenerationCompleted, outcome)
	assert.Equal(t, "second", second.joined())

	res := <-firstDone
	require.NoError(t, res.err)
	assert.Equal(t, ports.GenerationSuperseded, res.outcome)
	assert.Equal(t, "first", first.joined())
}

func TestCancelStopsGeneration(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
		writeFrame(w, map[string]string{"content": "x"})
		flush()
		<-r.Context().Done()
	})

	client := NewClient(Config{APIBaseURL: srv.URL}, logging.Nop())
	streamed := make(chan struct{}, 1)
	done := make(chan error, 1)
	var outcome ports.GenerationOutcome
	go func() {
		var err error
		outcome, err = client.Generate(context.Background(), nil, func(string) {
			streamed <- struct{}{}
		}, nil)
		done <- err
	}()

	<-streamed
	client.Cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Equal(t, ports.GenerationCancelled, outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not stop after cancel")
	}
}

func TestCallerContextCancellationIsAnError(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
		flush()
		<-r.Context().Done()
	})

	client := NewClient(Config{APIBaseURL: srv.URL}, logging.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}
