package domain

import "time"

// UnitKind identifies how a transcription block was produced.
type UnitKind string

const (
	UnitKindAudio UnitKind = "audio"
	UnitKindText  UnitKind = "text"
)

// ColorTag is an optional highlight applied to a unit.
type ColorTag string

const (
	ColorTagNone   ColorTag = ""
	ColorTagRed    ColorTag = "red"
	ColorTagYellow ColorTag = "yellow"
	ColorTagGreen  ColorTag = "green"
	ColorTagBlue   ColorTag = "blue"
	ColorTagPurple ColorTag = "purple"
)

// Unit is one transcription block within a session. Position is implied by
// slice order.
type Unit struct {
	ID          string   `json:"id"`
	SessionID   string   `json:"sessionId"`
	Kind        UnitKind `json:"kind"`
	Content     string   `json:"content"`
	Checked     bool     `json:"checked"`
	ColorTag    ColorTag `json:"colorTag,omitempty"`
	SoftDeleted bool     `json:"softDeleted"`
}

// UnitPatch carries a partial update for a unit. Nil fields are left unchanged.
type UnitPatch struct {
	Content  *string   `json:"text,omitempty"`
	Checked  *bool     `json:"is_checked,omitempty"`
	ColorTag *ColorTag `json:"color,omitempty"`
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusError      TaskStatus = "error"
)

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusError
}

// TaskSource identifies what a task tracks.
type TaskSource string

const (
	TaskSourceUnit   TaskSource = "unit"
	TaskSourceSystem TaskSource = "system"
)

// Task is an ephemeral, client-only progress record. It is never persisted.
type Task struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Message   string     `json:"message"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Source    TaskSource `json:"source"`
	UnitID    string     `json:"unitId,omitempty"`
	Dismissed bool       `json:"-"`
}

// Revision is an immutable snapshot of editor output.
type Revision struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Content   string    `json:"content"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Role tags a generation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged input to a generation request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// FrameKind identifies a decoded generation frame.
type FrameKind string

const (
	FrameKindContent FrameKind = "content"
	FrameKindStatus  FrameKind = "status"
	FrameKindError   FrameKind = "error"
	FrameKindDone    FrameKind = "done"
)

// Frame is one decoded unit of an incremental generation stream.
type Frame struct {
	Kind FrameKind
	Text string
}

// ChangeType is the envelope type pushed by the backend on the live channel.
type ChangeType string

const (
	ChangeSessionCreated  ChangeType = "session_created"
	ChangeSessionUpdated  ChangeType = "session_updated"
	ChangeSessionDeleted  ChangeType = "session_deleted"
	ChangeBlockCreated    ChangeType = "block_created"
	ChangeBlockUpdated    ChangeType = "block_updated"
	ChangeBlockDeleted    ChangeType = "block_deleted"
	ChangeRevisionCreated ChangeType = "revision_created"
	ChangeSettingsUpdated ChangeType = "settings_updated"
)

// ErrorCode identifies non-fatal and fatal client errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup    ErrorCode = "startup"
	ErrorCodeRefresh    ErrorCode = "refresh"
	ErrorCodeReorder    ErrorCode = "reorder"
	ErrorCodeGeneration ErrorCode = "generation"
	ErrorCodeRevisions  ErrorCode = "revisions"
)
