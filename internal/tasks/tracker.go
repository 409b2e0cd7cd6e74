package tasks

import (
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribedesk/internal/domain"
	"scribedesk/internal/platform/clock"
)

// Config controls how long terminal tasks stay visible.
type Config struct {
	SuccessTTL time.Duration
	ErrorTTL   time.Duration
}

// Tracker owns the current task state and the auto-dismiss timers. All
// mutations go through the reducer.
type Tracker struct {
	reducer  Reducer
	clock    clock.Clock
	cfg      Config
	onChange func([]domain.Task)

	mu     sync.Mutex
	state  State
	timers map[string]clock.Timer
}

// NewTracker builds a tracker. onChange receives the visible tasks after
// every dispatch that changes them; it runs under the tracker lock and must
// not call back into the tracker.
func NewTracker(cfg Config, clk clock.Clock, onChange func([]domain.Task)) *Tracker {
	if cfg.SuccessTTL <= 0 {
		cfg.SuccessTTL = 4 * time.Second
	}
	if cfg.ErrorTTL <= 0 {
		cfg.ErrorTTL = 8 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	if onChange == nil {
		onChange = func([]domain.Task) {}
	}
	return &Tracker{
		reducer:  NewReducer(uuid.NewString),
		clock:    clk,
		cfg:      cfg,
		onChange: onChange,
		timers:   make(map[string]clock.Timer),
	}
}

// Dispatch applies one event and returns the resulting state.
func (t *Tracker) Dispatch(ev Event) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.state
	next := t.reducer.Reduce(prev, ev)
	t.state = next
	t.syncTimers(prev, next)

	if !reflect.DeepEqual(prev.Tasks(), next.Tasks()) {
		t.onChange(next.Tasks())
	}
	return next
}

// UnitsRefreshed feeds a push- or user-triggered snapshot.
func (t *Tracker) UnitsRefreshed(units []domain.Unit) State {
	return t.Dispatch(UnitsRefreshed{Units: units, At: t.clock.Now()})
}

// PollTick feeds a snapshot fetched by the polling loop.
func (t *Tracker) PollTick(units []domain.Unit) State {
	return t.Dispatch(PollTick{Units: units, At: t.clock.Now()})
}

// StartStream opens the system task for a new generation and returns its id.
func (t *Tracker) StartStream(message string) string {
	id := uuid.NewString()
	t.Dispatch(StreamFrame{TaskID: id, Phase: StreamStarted, Message: message, At: t.clock.Now()})
	return id
}

func (t *Tracker) StreamStatus(id, message string) {
	t.Dispatch(StreamFrame{TaskID: id, Phase: StreamStatus, Message: message, At: t.clock.Now()})
}

func (t *Tracker) CompleteStream(id, message string) {
	t.Dispatch(StreamFrame{TaskID: id, Phase: StreamCompleted, Message: message, At: t.clock.Now()})
}

func (t *Tracker) FailStream(id, message string) {
	t.Dispatch(StreamFrame{TaskID: id, Phase: StreamFailed, Message: message, At: t.clock.Now()})
}

func (t *Tracker) CancelStream(id string) {
	t.Dispatch(StreamFrame{TaskID: id, Phase: StreamCancelled, At: t.clock.Now()})
}

// Dismiss hides a task at the user's request.
func (t *Tracker) Dismiss(id string) {
	t.Dispatch(DismissTask{ID: id})
}

// Tasks returns the visible tasks.
func (t *Tracker) Tasks() []domain.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Tasks()
}

// HasProcessing reports whether any task is still running.
func (t *Tracker) HasProcessing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Processing()
}

// Stop cancels every pending expiry timer.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

// syncTimers starts a timer for each task that just became terminal and
// drops timers of tasks that are gone. Timers are keyed by task id so a
// re-render never restarts them.
func (t *Tracker) syncTimers(prev, next State) {
	for id, timer := range t.timers {
		if _, ok := next.Find(id); !ok {
			timer.Stop()
			delete(t.timers, id)
		}
	}

	for _, task := range next.tasks {
		if !task.Status.Terminal() {
			continue
		}
		if old, ok := prev.Find(task.ID); ok && old.Status == task.Status {
			continue
		}
		if existing, ok := t.timers[task.ID]; ok {
			existing.Stop()
		}
		id := task.ID
		t.timers[id] = t.clock.AfterFunc(t.ttl(task.Status), func() {
			t.Dispatch(ExpireTask{ID: id})
		})
	}
}

func (t *Tracker) ttl(status domain.TaskStatus) time.Duration {
	if status == domain.TaskStatusError {
		return t.cfg.ErrorTTL
	}
	return t.cfg.SuccessTTL
}
