package ports

import (
	"context"

	"scribedesk/internal/domain"
)

// UnitStore is the authoritative CRUD layer for transcription units.
type UnitStore interface {
	ListUnits(ctx context.Context, sessionID string) ([]domain.Unit, error)
	ReorderUnits(ctx context.Context, sessionID string, ids []string) error
	UpdateUnit(ctx context.Context, id string, patch domain.UnitPatch) error
	SoftDeleteUnit(ctx context.Context, id string) error
	RestoreUnit(ctx context.Context, id string) error
}

// RevisionStore reads and appends editor revisions.
type RevisionStore interface {
	ListRevisions(ctx context.Context, sessionID string) ([]domain.Revision, error)
	CreateRevision(ctx context.Context, sessionID string, content string, note string) (domain.Revision, error)
}

// RevisionCache keeps the last fetched revisions available offline.
type RevisionCache interface {
	Replace(ctx context.Context, sessionID string, revisions []domain.Revision) error
	List(ctx context.Context, sessionID string) ([]domain.Revision, error)
}

// GenerationOutcome says how a generation that returned without error ended.
type GenerationOutcome string

const (
	GenerationCompleted  GenerationOutcome = "completed"
	GenerationSuperseded GenerationOutcome = "superseded"
	GenerationCancelled  GenerationOutcome = "cancelled"
)

// Generator runs one streaming generation at a time.
type Generator interface {
	Generate(ctx context.Context, messages []domain.Message, onContent func(string), onStatus func(string)) (GenerationOutcome, error)
	Cancel()
}

// EventSink emits engine state to the UI.
type EventSink interface {
	TasksChanged(tasks []domain.Task)
	UnitsChanged(sessionID string, units []domain.Unit)
	RevisionsChanged(sessionID string, revisions []domain.Revision)
	EditorAppend(text string)
	SessionsChanged()
	SettingsChanged()
	ConnectionChanged(live bool)
	SyncError(code domain.ErrorCode, detail string)
}

// ChangeHandlers receive hints from the push channel. Any of them may be nil.
type ChangeHandlers struct {
	SessionsChanged   func()
	UnitsChanged      func(sessionID string)
	RevisionsChanged  func(sessionID string)
	SettingsChanged   func()
	ConnectionChanged func(live bool)
}
