package usecase

import (
	"strings"
	"sync"

	"scribedesk/internal/ports"
)

// outputAggregator accumulates streamed generation text verbatim and
// forwards every chunk to the editor.
type outputAggregator struct {
	events ports.EventSink

	mu     sync.Mutex
	buf    strings.Builder
	chunks int
}

func newOutputAggregator(events ports.EventSink) *outputAggregator {
	return &outputAggregator{events: events}
}

func (a *outputAggregator) Add(text string) {
	if text == "" {
		return
	}

	a.mu.Lock()
	a.buf.WriteString(text)
	a.chunks++
	a.mu.Unlock()

	a.events.EditorAppend(text)
}

func (a *outputAggregator) Output() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

func (a *outputAggregator) Chunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks
}
