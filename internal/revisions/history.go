package revisions

import (
	"errors"
	"sort"
	"sync"

	"scribedesk/internal/domain"
)

// ErrOutOfRange is returned when a position has no revision.
var ErrOutOfRange = errors.New("revision position out of range")

// History is a cursor over one session's revisions, newest first. Position 0
// is the newest revision.
type History struct {
	mu        sync.Mutex
	sessionID string
	items     []domain.Revision
	cursor    int
}

func NewHistory() *History {
	return &History{}
}

// Reset replaces the list. The cursor returns to the newest revision when the
// session changes, and otherwise stays on the same revision id if it still
// exists.
func (h *History) Reset(sessionID string, revisions []domain.Revision) {
	items := append([]domain.Revision(nil), revisions...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	current := ""
	if h.sessionID == sessionID && h.cursor < len(h.items) {
		current = h.items[h.cursor].ID
	}
	h.sessionID = sessionID
	h.items = items
	h.cursor = 0
	for i, rev := range items {
		if rev.ID == current {
			h.cursor = i
			break
		}
	}
}

func (h *History) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

func (h *History) List() []domain.Revision {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Revision(nil), h.items...)
}

// At moves the cursor to pos and returns that revision.
func (h *History) At(pos int) (domain.Revision, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pos < 0 || pos >= len(h.items) {
		return domain.Revision{}, ErrOutOfRange
	}
	h.cursor = pos
	return h.items[pos], nil
}

// Position returns the cursor.
func (h *History) Position() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// Older steps one revision back in time.
func (h *History) Older() (domain.Revision, error) {
	h.mu.Lock()
	pos := h.cursor + 1
	h.mu.Unlock()
	return h.At(pos)
}

// Newer steps one revision forward in time.
func (h *History) Newer() (domain.Revision, error) {
	h.mu.Lock()
	pos := h.cursor - 1
	h.mu.Unlock()
	return h.At(pos)
}
