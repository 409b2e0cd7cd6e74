package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"scribedesk/internal/domain"
	"scribedesk/internal/platform/clock"
	"scribedesk/internal/ports"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

// Advance moves time forward and fires due timers outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := make([]*fakeTimer, 0)
	for _, timer := range c.timers {
		timer.mu.Lock()
		if !timer.stopped && !timer.fired && !timer.at.After(c.now) {
			timer.fired = true
			due = append(due, timer)
		}
		timer.mu.Unlock()
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, timer := range due {
		timer.fn()
	}
}

type fakeUnitStore struct {
	mu        sync.Mutex
	snapshots [][]domain.Unit
	listCalls int
	listErr   error
	block     chan struct{}
	blockOn   int
	reorders  [][]string
	reordErr  error
	updates   []string
	deleted   []string
	restored  []string
}

// ListUnits returns the queued snapshots in order and keeps repeating the
// last one.
func (s *fakeUnitStore) ListUnits(ctx context.Context, _ string) ([]domain.Unit, error) {
	s.mu.Lock()
	s.listCalls++
	call := s.listCalls
	block := s.block
	blockOn := s.blockOn
	err := s.listErr
	var units []domain.Unit
	if len(s.snapshots) > 0 {
		units = s.snapshots[0]
		if len(s.snapshots) > 1 {
			s.snapshots = s.snapshots[1:]
		}
	}
	s.mu.Unlock()

	if block != nil && call == blockOn {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return append([]domain.Unit(nil), units...), nil
}

func (s *fakeUnitStore) push(units ...[]domain.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, units...)
}

func (s *fakeUnitStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *fakeUnitStore) ReorderUnits(_ context.Context, _ string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reorders = append(s.reorders, ids)
	return s.reordErr
}

func (s *fakeUnitStore) UpdateUnit(_ context.Context, id string, _ domain.UnitPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, id)
	return nil
}

func (s *fakeUnitStore) SoftDeleteUnit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeUnitStore) RestoreUnit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restored = append(s.restored, id)
	return nil
}

type fakeRevisionStore struct {
	mu      sync.Mutex
	list    []domain.Revision
	listErr error
	created []domain.Revision
}

func (s *fakeRevisionStore) ListRevisions(context.Context, string) ([]domain.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]domain.Revision(nil), s.list...), nil
}

func (s *fakeRevisionStore) CreateRevision(_ context.Context, sessionID string, content string, note string) (domain.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rev := domain.Revision{
		ID:        "rev-" + content,
		SessionID: sessionID,
		Content:   content,
		Note:      note,
		CreatedAt: time.Unix(1_800_000_000, 0).UTC(),
	}
	s.created = append(s.created, rev)
	s.list = append([]domain.Revision{rev}, s.list...)
	return rev, nil
}

type fakeRevisionCache struct {
	mu     sync.Mutex
	stored map[string][]domain.Revision
}

func (c *fakeRevisionCache) Replace(_ context.Context, sessionID string, revisions []domain.Revision) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stored == nil {
		c.stored = map[string][]domain.Revision{}
	}
	c.stored[sessionID] = append([]domain.Revision(nil), revisions...)
	return nil
}

func (c *fakeRevisionCache) List(_ context.Context, sessionID string) ([]domain.Revision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Revision(nil), c.stored[sessionID]...), nil
}

// fakeGenerator plays a scripted run. Each content chunk is delivered in
// order; outcome and err are returned at the end.
type fakeGenerator struct {
	mu        sync.Mutex
	chunks    []string
	statuses  []string
	outcome   ports.GenerationOutcome
	err       error
	messages  [][]domain.Message
	cancelled int
}

func (g *fakeGenerator) Generate(_ context.Context, messages []domain.Message, onContent func(string), onStatus func(string)) (ports.GenerationOutcome, error) {
	g.mu.Lock()
	g.messages = append(g.messages, messages)
	chunks := g.chunks
	statuses := g.statuses
	outcome := g.outcome
	err := g.err
	g.mu.Unlock()

	for _, status := range statuses {
		onStatus(status)
	}
	for _, chunk := range chunks {
		onContent(chunk)
	}
	if outcome == "" && err == nil {
		outcome = ports.GenerationCompleted
	}
	return outcome, err
}

func (g *fakeGenerator) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled++
}

type syncErrorEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu         sync.Mutex
	tasks      [][]domain.Task
	units      [][]domain.Unit
	revisions  [][]domain.Revision
	appended   []string
	sessions   int
	settings   int
	connection []bool
	errors     []syncErrorEvent
}

func (s *fakeEventSink) TasksChanged(tasks []domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, tasks)
}

func (s *fakeEventSink) UnitsChanged(_ string, units []domain.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = append(s.units, units)
}

func (s *fakeEventSink) RevisionsChanged(_ string, revisions []domain.Revision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revisions = append(s.revisions, revisions)
}

func (s *fakeEventSink) EditorAppend(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, text)
}

func (s *fakeEventSink) SessionsChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions++
}

func (s *fakeEventSink) SettingsChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings++
}

func (s *fakeEventSink) ConnectionChanged(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connection = append(s.connection, live)
}

func (s *fakeEventSink) SyncError(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, syncErrorEvent{code: code, detail: detail})
}

func (s *fakeEventSink) errorCodes() []domain.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]domain.ErrorCode, 0, len(s.errors))
	for _, e := range s.errors {
		codes = append(codes, e.code)
	}
	return codes
}

func (s *fakeEventSink) lastUnits() []domain.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.units) == 0 {
		return nil
	}
	return s.units[len(s.units)-1]
}
