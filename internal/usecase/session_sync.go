package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2/pkg/logger"

	"scribedesk/internal/domain"
	"scribedesk/internal/platform/clock"
	"scribedesk/internal/platform/logging"
	"scribedesk/internal/ports"
	"scribedesk/internal/reorder"
	"scribedesk/internal/revisions"
	"scribedesk/internal/tasks"
)

var (
	ErrNoSession   = errors.New("no session selected")
	ErrClosed      = errors.New("session sync is closed")
	ErrEmptyPrompt = errors.New("nothing to generate from")
)

const (
	generationStartedMessage = "Generating response..."
	generationDoneMessage    = "Generation complete"
)

// Config controls polling and task expiry.
type Config struct {
	PollInterval time.Duration
	Tasks        tasks.Config
	Clock        clock.Clock
}

// SessionSync keeps the selected session's units, tasks and revisions in
// step with the backend. Snapshots are applied in issue order; a response
// older than the last applied one is dropped.
type SessionSync struct {
	units     ports.UnitStore
	revisions ports.RevisionStore
	cache     ports.RevisionCache
	generator ports.Generator
	events    ports.EventSink
	finalizer revisionFinalizer
	tracker   *tasks.Tracker
	history   *revisions.History
	poller    *unitPoller
	log       logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// applyMu orders snapshot application together with the tracker dispatch
	// it triggers.
	applyMu sync.Mutex

	mu         sync.Mutex
	sessionID  string
	snapshot   []domain.Unit
	issued     uint64
	applied    uint64
	generation *activeGeneration
	closed     bool
}

// NewSessionSync wires the engine. cache may be nil.
func NewSessionSync(
	units ports.UnitStore,
	revisionStore ports.RevisionStore,
	cache ports.RevisionCache,
	generator ports.Generator,
	events ports.EventSink,
	log logger.Logger,
	cfg Config,
) *SessionSync {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &SessionSync{
		units:     units,
		revisions: revisionStore,
		cache:     cache,
		generator: generator,
		events:    events,
		finalizer: newRevisionFinalizer(revisionStore, events),
		history:   revisions.NewHistory(),
		log:       logging.Prefixed(log, "sync"),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.tracker = tasks.NewTracker(cfg.Tasks, cfg.Clock, events.TasksChanged)
	s.poller = newUnitPoller(cfg.Clock, cfg.PollInterval, s.pollOnce)
	return s
}

// SelectSession switches the engine to a session and loads its units and
// revisions. An empty id deselects.
func (s *SessionSync) SelectSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	changed := s.sessionID != sessionID
	s.sessionID = sessionID
	if changed {
		s.snapshot = nil
	}
	s.mu.Unlock()

	if changed {
		s.poller.Cancel()
		s.history.Reset(sessionID, nil)
		s.events.UnitsChanged(sessionID, nil)
		s.log.Info(fmt.Sprintf("selected session %q", sessionID))
	}
	if sessionID == "" {
		return nil
	}

	if err := s.Refresh(ctx); err != nil {
		return err
	}
	if err := s.RefreshRevisions(ctx); err != nil {
		s.log.Warning(fmt.Sprintf("load revisions: %v", err))
	}
	return nil
}

// SessionID returns the selected session, or "" when none is selected.
func (s *SessionSync) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Refresh refetches the selected session's units.
func (s *SessionSync) Refresh(ctx context.Context) error {
	if err := s.refresh(ctx, false); err != nil {
		if !errors.Is(err, ErrNoSession) && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
			s.events.SyncError(domain.ErrorCodeRefresh, err.Error())
		}
		return err
	}
	return nil
}

func (s *SessionSync) refresh(ctx context.Context, fromPoll bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	sessionID := s.sessionID
	if sessionID == "" {
		s.mu.Unlock()
		return ErrNoSession
	}
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	units, err := s.units.ListUnits(ctx, sessionID)
	if err != nil {
		s.schedulePoll()
		return err
	}
	s.apply(seq, sessionID, units, fromPoll)
	return nil
}

func (s *SessionSync) apply(seq uint64, sessionID string, units []domain.Unit, fromPoll bool) bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if s.closed || sessionID != s.sessionID || seq <= s.applied {
		s.mu.Unlock()
		s.log.Debug(fmt.Sprintf("discarding stale snapshot %d for %q", seq, sessionID))
		// The dropped fetch may have been the poll tick; its timer is gone.
		s.schedulePoll()
		return false
	}
	s.applied = seq
	s.snapshot = cloneUnits(units)
	s.mu.Unlock()

	s.events.UnitsChanged(sessionID, cloneUnits(units))
	if fromPoll {
		s.tracker.PollTick(units)
	} else {
		s.tracker.UnitsRefreshed(units)
	}
	s.schedulePoll()
	return true
}

func (s *SessionSync) schedulePoll() {
	s.mu.Lock()
	selected := s.sessionID != "" && !s.closed
	s.mu.Unlock()

	if selected && s.tracker.HasProcessing() {
		s.poller.Ensure()
	}
}

func (s *SessionSync) pollOnce() {
	if err := s.refresh(s.ctx, true); err != nil && !errors.Is(err, ErrNoSession) && !errors.Is(err, ErrClosed) {
		s.log.Debug(fmt.Sprintf("poll failed: %v", err))
	}
}

// Polling reports whether a poll tick is pending.
func (s *SessionSync) Polling() bool {
	return s.poller.Pending()
}

// Units returns the full unit list, including soft-deleted units.
func (s *SessionSync) Units() []domain.Unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUnits(s.snapshot)
}

// LiveUnits returns the units that are not soft-deleted.
func (s *SessionSync) LiveUnits() []domain.Unit {
	return lo.Reject(s.Units(), func(u domain.Unit, _ int) bool { return u.SoftDeleted })
}

// TrashedUnits returns the soft-deleted units.
func (s *SessionSync) TrashedUnits() []domain.Unit {
	return lo.Filter(s.Units(), func(u domain.Unit, _ int) bool { return u.SoftDeleted })
}

// Reorder moves a unit to a position among the live units and sends the
// resulting full order to the store. Target reorder.End appends.
func (s *SessionSync) Reorder(ctx context.Context, unitID string, target int) error {
	s.applyMu.Lock()
	s.mu.Lock()
	sessionID := s.sessionID
	if sessionID == "" {
		s.mu.Unlock()
		s.applyMu.Unlock()
		return ErrNoSession
	}
	next, changed, err := reorder.MoveUnits(s.snapshot, unitID, target)
	if err != nil || !changed {
		s.mu.Unlock()
		s.applyMu.Unlock()
		if err != nil {
			return fmt.Errorf("reorder unit %s: %w", unitID, err)
		}
		return nil
	}
	// Responses issued before this point describe the old order.
	s.issued++
	s.applied = s.issued
	s.snapshot = next
	s.mu.Unlock()
	s.events.UnitsChanged(sessionID, cloneUnits(next))
	s.applyMu.Unlock()

	if err := s.units.ReorderUnits(ctx, sessionID, reorder.IDs(next)); err != nil {
		s.events.SyncError(domain.ErrorCodeReorder, err.Error())
		if refreshErr := s.refresh(ctx, false); refreshErr != nil {
			s.log.Warning(fmt.Sprintf("restore order after failed reorder: %v", refreshErr))
		}
		return err
	}
	return nil
}

func (s *SessionSync) UpdateUnit(ctx context.Context, id string, patch domain.UnitPatch) error {
	return s.mutateUnit(ctx, "update", func() error { return s.units.UpdateUnit(ctx, id, patch) })
}

func (s *SessionSync) SoftDeleteUnit(ctx context.Context, id string) error {
	return s.mutateUnit(ctx, "delete", func() error { return s.units.SoftDeleteUnit(ctx, id) })
}

func (s *SessionSync) RestoreUnit(ctx context.Context, id string) error {
	return s.mutateUnit(ctx, "restore", func() error { return s.units.RestoreUnit(ctx, id) })
}

func (s *SessionSync) mutateUnit(ctx context.Context, verb string, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	if err := s.refresh(ctx, false); err != nil && !errors.Is(err, ErrNoSession) {
		s.log.Warning(fmt.Sprintf("refresh after %s: %v", verb, err))
	}
	return nil
}

// Generate streams a generation into the editor and tracks it as the system
// task. A completed generation is stored as a revision of the selected
// session. Superseded and cancelled generations return a nil error.
func (s *SessionSync) Generate(ctx context.Context, messages []domain.Message) (GenerationResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return GenerationResult{}, ErrClosed
	}
	sessionID := s.sessionID
	s.mu.Unlock()

	taskID := s.tracker.StartStream(generationStartedMessage)
	gen := &activeGeneration{taskID: taskID, sessionID: sessionID, output: newOutputAggregator(s.events)}
	s.mu.Lock()
	s.generation = gen
	s.mu.Unlock()
	defer s.clearGeneration(gen)
	s.schedulePoll()

	outcome, err := s.generator.Generate(ctx, messages, gen.output.Add, func(status string) {
		s.tracker.StreamStatus(taskID, status)
	})
	result := GenerationResult{Outcome: outcome, Output: gen.output.Output(), Chunks: gen.output.Chunks()}
	if err != nil {
		s.tracker.FailStream(taskID, err.Error())
		s.events.SyncError(domain.ErrorCodeGeneration, err.Error())
		return result, err
	}

	switch outcome {
	case ports.GenerationSuperseded:
		s.log.Debug("generation superseded")
		return result, nil
	case ports.GenerationCancelled:
		s.tracker.CancelStream(taskID)
		return result, nil
	}

	s.tracker.CompleteStream(taskID, generationDoneMessage)
	s.log.Debug(fmt.Sprintf("generation completed: %d chunks", result.Chunks))

	rev, err := s.finalizer.Finalize(ctx, sessionID, result.Output)
	if err != nil {
		s.log.Warning(fmt.Sprintf("save generated revision: %v", err))
		return result, nil
	}
	result.Revision = rev
	if rev != nil {
		if err := s.RefreshRevisions(ctx); err != nil {
			s.log.Debug(fmt.Sprintf("refresh revisions after generation: %v", err))
		}
	}
	return result, nil
}

// GenerateFromUnits builds the request from the checked live units and
// runs Generate.
func (s *SessionSync) GenerateFromUnits(ctx context.Context, system string, instruction string) (GenerationResult, error) {
	messages := BuildMessages(system, instruction, s.LiveUnits())
	if last := messages[len(messages)-1]; last.Content == "" {
		return GenerationResult{}, ErrEmptyPrompt
	}
	return s.Generate(ctx, messages)
}

// CancelGeneration aborts the in-flight generation and reports whether there
// was one.
func (s *SessionSync) CancelGeneration() bool {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	if gen == nil {
		return false
	}
	s.generator.Cancel()
	return true
}

func (s *SessionSync) clearGeneration(gen *activeGeneration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.generation = nil
	}
}

// Tasks returns the visible tasks.
func (s *SessionSync) Tasks() []domain.Task {
	return s.tracker.Tasks()
}

func (s *SessionSync) DismissTask(id string) {
	s.tracker.Dismiss(id)
}

// RefreshRevisions reloads the selected session's revisions. When the
// backend is unreachable the cached list is served instead.
func (s *SessionSync) RefreshRevisions(ctx context.Context) error {
	sessionID := s.SessionID()
	if sessionID == "" {
		return ErrNoSession
	}

	list, err := s.revisions.ListRevisions(ctx, sessionID)
	switch {
	case err != nil:
		s.events.SyncError(domain.ErrorCodeRevisions, err.Error())
		if s.cache == nil {
			return err
		}
		cached, cacheErr := s.cache.List(ctx, sessionID)
		if cacheErr != nil {
			s.log.Warning(fmt.Sprintf("read revision cache: %v", cacheErr))
			return err
		}
		s.log.Info(fmt.Sprintf("serving %d cached revisions for %q", len(cached), sessionID))
		list = cached
	case s.cache != nil:
		if cacheErr := s.cache.Replace(ctx, sessionID, list); cacheErr != nil {
			s.log.Warning(fmt.Sprintf("write revision cache: %v", cacheErr))
		}
	}

	if s.SessionID() != sessionID {
		return nil
	}
	s.history.Reset(sessionID, list)
	s.events.RevisionsChanged(sessionID, s.history.List())
	return nil
}

// Revisions returns the selected session's revisions, newest first.
func (s *SessionSync) Revisions() []domain.Revision {
	if s.history.SessionID() != s.SessionID() {
		return nil
	}
	return s.history.List()
}

// RevisionAt returns the revision at pos, 0 being the newest.
func (s *SessionSync) RevisionAt(pos int) (domain.Revision, error) {
	if s.history.SessionID() != s.SessionID() {
		return domain.Revision{}, revisions.ErrOutOfRange
	}
	return s.history.At(pos)
}

// RevisionCursor reports the history cursor position and the number of
// revisions held for the selected session.
func (s *SessionSync) RevisionCursor() (position int, count int) {
	if s.history.SessionID() != s.SessionID() {
		return 0, 0
	}
	return s.history.Position(), s.history.Len()
}

// OlderRevision steps the revision cursor back in time.
func (s *SessionSync) OlderRevision() (domain.Revision, error) {
	return s.history.Older()
}

// NewerRevision steps the revision cursor forward in time.
func (s *SessionSync) NewerRevision() (domain.Revision, error) {
	return s.history.Newer()
}

// TransportHandlers routes push-channel hints into the engine. Hints for
// sessions other than the selected one are ignored.
func (s *SessionSync) TransportHandlers() ports.ChangeHandlers {
	return ports.ChangeHandlers{
		SessionsChanged: s.events.SessionsChanged,
		SettingsChanged: s.events.SettingsChanged,
		UnitsChanged: func(sessionID string) {
			s.onHint(sessionID, "units", func(ctx context.Context) error { return s.refresh(ctx, false) })
		},
		RevisionsChanged: func(sessionID string) {
			s.onHint(sessionID, "revisions", s.RefreshRevisions)
		},
		ConnectionChanged: s.events.ConnectionChanged,
	}
}

func (s *SessionSync) onHint(sessionID string, what string, fn func(context.Context) error) {
	s.mu.Lock()
	if s.closed || sessionID != s.sessionID {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := fn(s.ctx); err != nil {
			s.log.Debug(fmt.Sprintf("%s hint refresh failed: %v", what, err))
		}
	}()
}

// Close stops polling, cancels any generation and waits for background
// refreshes.
func (s *SessionSync) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	gen := s.generation
	s.mu.Unlock()

	s.cancel()
	if gen != nil {
		s.generator.Cancel()
	}
	s.poller.Stop()
	s.wg.Wait()
	s.tracker.Stop()
	return nil
}

func cloneUnits(units []domain.Unit) []domain.Unit {
	if units == nil {
		return nil
	}
	return append([]domain.Unit(nil), units...)
}
