package tasks

import (
	"time"

	"github.com/samber/lo"

	"scribedesk/internal/domain"
)

// Event is the closed set of inputs the reducer understands.
type Event interface {
	isEvent()
}

// UnitsRefreshed carries a freshly fetched unit snapshot from a push-driven
// or explicit refresh.
type UnitsRefreshed struct {
	Units []domain.Unit
	At    time.Time
}

// PollTick carries a unit snapshot fetched by the polling loop.
type PollTick struct {
	Units []domain.Unit
	At    time.Time
}

// StreamPhase identifies which part of a generation lifecycle a frame reports.
type StreamPhase string

const (
	StreamStarted   StreamPhase = "started"
	StreamStatus    StreamPhase = "status"
	StreamCompleted StreamPhase = "completed"
	StreamFailed    StreamPhase = "failed"
	StreamCancelled StreamPhase = "cancelled"
)

// StreamFrame reports generation progress for the single system task.
type StreamFrame struct {
	TaskID  string
	Phase   StreamPhase
	Message string
	At      time.Time
}

// DismissTask is a user dismissal.
type DismissTask struct {
	ID string
}

// ExpireTask is fired by the auto-dismiss timer of a terminal task.
type ExpireTask struct {
	ID string
}

func (UnitsRefreshed) isEvent() {}
func (PollTick) isEvent()       {}
func (StreamFrame) isEvent()    {}
func (DismissTask) isEvent()    {}
func (ExpireTask) isEvent()     {}

// State is an immutable task collection. Reduce never modifies the state it
// receives.
type State struct {
	tasks []domain.Task
}

// Tasks returns the visible tasks in creation order.
func (s State) Tasks() []domain.Task {
	return lo.Filter(s.tasks, func(task domain.Task, _ int) bool { return !task.Dismissed })
}

// Find looks a task up by id, including dismissed in-flight tasks.
func (s State) Find(id string) (domain.Task, bool) {
	return lo.Find(s.tasks, func(task domain.Task) bool { return task.ID == id })
}

// Processing reports whether any task, visible or not, is still running.
func (s State) Processing() bool {
	return lo.SomeBy(s.tasks, func(task domain.Task) bool { return task.Status == domain.TaskStatusProcessing })
}

// Reducer derives task state from events.
type Reducer struct {
	newID func() string
}

func NewReducer(newID func() string) Reducer {
	return Reducer{newID: newID}
}

// Reduce returns the state that results from applying ev to state.
func (r Reducer) Reduce(state State, ev Event) State {
	switch ev := ev.(type) {
	case UnitsRefreshed:
		return r.deriveFromUnits(state, ev.Units, ev.At)
	case PollTick:
		return r.deriveFromUnits(state, ev.Units, ev.At)
	case StreamFrame:
		return r.applyStream(state, ev)
	case DismissTask:
		return dismiss(state, ev.ID)
	case ExpireTask:
		return expire(state, ev.ID)
	default:
		return state
	}
}

func (r Reducer) deriveFromUnits(state State, units []domain.Unit, at time.Time) State {
	byID := lo.KeyBy(units, func(unit domain.Unit) string { return unit.ID })
	tracked := make(map[string]struct{}, len(state.tasks))
	next := make([]domain.Task, 0, len(state.tasks)+len(units))

	for _, task := range state.tasks {
		if task.Source != domain.TaskSourceUnit || task.Status != domain.TaskStatusProcessing {
			next = append(next, task)
			continue
		}

		unit, ok := byID[task.UnitID]
		switch {
		case !ok:
			task = finish(task, domain.TaskStatusError, "unit not found", at)
		case InProgress(unit.Content):
			task.Message = unit.Content
			tracked[unit.ID] = struct{}{}
		default:
			task = finish(task, Classify(unit.Content), unit.Content, at)
		}

		if task.Dismissed && task.Status.Terminal() {
			continue
		}
		next = append(next, task)
	}

	for _, unit := range units {
		if unit.SoftDeleted || !InProgress(unit.Content) {
			continue
		}
		if _, ok := tracked[unit.ID]; ok {
			continue
		}
		tracked[unit.ID] = struct{}{}
		next = append(next, domain.Task{
			ID:        r.newID(),
			Status:    domain.TaskStatusProcessing,
			Message:   unit.Content,
			StartedAt: at,
			Source:    domain.TaskSourceUnit,
			UnitID:    unit.ID,
		})
	}

	return State{tasks: next}
}

func (r Reducer) applyStream(state State, ev StreamFrame) State {
	if ev.Phase == StreamStarted {
		next := lo.Reject(state.tasks, func(task domain.Task, _ int) bool { return task.Source == domain.TaskSourceSystem })
		next = append(next, domain.Task{
			ID:        ev.TaskID,
			Status:    domain.TaskStatusProcessing,
			Message:   ev.Message,
			StartedAt: ev.At,
			Source:    domain.TaskSourceSystem,
		})
		return State{tasks: next}
	}

	_, idx, ok := lo.FindIndexOf(state.tasks, func(task domain.Task) bool {
		return task.ID == ev.TaskID && task.Source == domain.TaskSourceSystem
	})
	if !ok || state.tasks[idx].Status.Terminal() {
		return state
	}

	task := state.tasks[idx]
	switch ev.Phase {
	case StreamStatus:
		if ev.Message == "" || ev.Message == task.Message {
			return state
		}
		task.Message = ev.Message
	case StreamCompleted:
		task = finish(task, domain.TaskStatusSuccess, lo.Ternary(ev.Message == "", task.Message, ev.Message), ev.At)
	case StreamFailed:
		task = finish(task, domain.TaskStatusError, ev.Message, ev.At)
	case StreamCancelled:
		return State{tasks: removeAt(state.tasks, idx)}
	default:
		return state
	}

	if task.Dismissed && task.Status.Terminal() {
		return State{tasks: removeAt(state.tasks, idx)}
	}
	return State{tasks: replaceAt(state.tasks, idx, task)}
}

func dismiss(state State, id string) State {
	task, idx, ok := lo.FindIndexOf(state.tasks, func(task domain.Task) bool { return task.ID == id })
	if !ok || task.Dismissed {
		return state
	}
	if task.Status.Terminal() {
		return State{tasks: removeAt(state.tasks, idx)}
	}
	// A running task stays tracked while hidden so the same unit does not
	// spawn a replacement on the next refresh.
	task.Dismissed = true
	return State{tasks: replaceAt(state.tasks, idx, task)}
}

func expire(state State, id string) State {
	task, idx, ok := lo.FindIndexOf(state.tasks, func(task domain.Task) bool { return task.ID == id })
	if !ok || !task.Status.Terminal() {
		return state
	}
	return State{tasks: removeAt(state.tasks, idx)}
}

func finish(task domain.Task, status domain.TaskStatus, message string, at time.Time) domain.Task {
	ended := at
	task.Status = status
	task.Message = message
	task.EndedAt = &ended
	return task
}

func removeAt(tasks []domain.Task, idx int) []domain.Task {
	next := make([]domain.Task, 0, len(tasks)-1)
	next = append(next, tasks[:idx]...)
	return append(next, tasks[idx+1:]...)
}

func replaceAt(tasks []domain.Task, idx int, task domain.Task) []domain.Task {
	next := append([]domain.Task(nil), tasks...)
	next[idx] = task
	return next
}
