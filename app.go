package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"scribedesk/internal/bootstrap"
	"scribedesk/internal/config"
	"scribedesk/internal/domain"
	"scribedesk/internal/usecase"
)

const (
	eventTasks      = "scribedesk:tasks"
	eventUnits      = "scribedesk:units"
	eventAppend     = "scribedesk:append"
	eventRevisions  = "scribedesk:revisions"
	eventSessions   = "scribedesk:sessions"
	eventSettings   = "scribedesk:settings"
	eventConnection = "scribedesk:connection"
	eventError      = "scribedesk:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	cfg      config.Config
	log      logger.Logger
	services bootstrap.Services
	sync     *usecase.SessionSync
	bootErr  error
}

func NewApp(cfg config.Config, log logger.Logger) *App {
	return &App{cfg: cfg, log: log}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a.cfg, a, a.log)
	if err != nil {
		a.bootErr = err
		a.SyncError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.sync = services.Sync
	services.Start(ctx)
}

func (a *App) shutdown(_ context.Context) {
	if a.sync == nil {
		return
	}
	if err := a.services.Close(); err != nil && a.log != nil {
		a.log.Warning(fmt.Sprintf("shutdown: %v", err))
	}
}

// SelectSession switches the engine to a session. An empty id deselects.
func (a *App) SelectSession(sessionID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.sync.SelectSession(a.ctx, sessionID)
}

// Refresh refetches the selected session's units.
func (a *App) Refresh() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.sync.Refresh(a.ctx); err != nil && !errors.Is(err, usecase.ErrNoSession) {
		return err
	}
	return nil
}

// GetUnits returns the live units of the selected session.
func (a *App) GetUnits() []domain.Unit {
	if a.sync == nil {
		return []domain.Unit{}
	}
	return a.sync.LiveUnits()
}

// GetTrash returns soft-deleted units of the selected session.
func (a *App) GetTrash() []domain.Unit {
	if a.sync == nil {
		return []domain.Unit{}
	}
	return a.sync.TrashedUnits()
}

// Reorder moves a unit to the target index in the displayed order.
func (a *App) Reorder(unitID string, target int) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.sync.Reorder(a.ctx, unitID, target)
}

// UpdateUnit applies a partial edit to a unit.
func (a *App) UpdateUnit(unitID string, patch domain.UnitPatch) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.sync.UpdateUnit(a.ctx, unitID, patch)
}

// DeleteUnit moves a unit to the trash.
func (a *App) DeleteUnit(unitID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.sync.SoftDeleteUnit(a.ctx, unitID)
}

// RestoreUnit brings a unit back from the trash.
func (a *App) RestoreUnit(unitID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.sync.RestoreUnit(a.ctx, unitID)
}

// Generate streams a response built from the checked units and the
// instruction. Output arrives through scribedesk:append while it runs.
func (a *App) Generate(instruction string) (usecase.GenerationResult, error) {
	if err := a.requireReady(); err != nil {
		return usecase.GenerationResult{}, err
	}
	return a.sync.GenerateFromUnits(a.ctx, a.cfg.Generation.SystemPrompt, instruction)
}

// CancelGeneration aborts the in-flight generation, if any.
func (a *App) CancelGeneration() bool {
	if a.sync == nil {
		return false
	}
	return a.sync.CancelGeneration()
}

// GetTasks returns the visible tasks.
func (a *App) GetTasks() []domain.Task {
	if a.sync == nil {
		return []domain.Task{}
	}
	return a.sync.Tasks()
}

// DismissTask hides a task.
func (a *App) DismissTask(taskID string) {
	if a.sync == nil {
		return
	}
	a.sync.DismissTask(taskID)
}

// GetRevisions returns the selected session's revisions, newest first.
func (a *App) GetRevisions() []domain.Revision {
	if a.sync == nil {
		return []domain.Revision{}
	}
	return a.sync.Revisions()
}

// GetRevision returns the revision at pos, where 0 is the newest.
func (a *App) GetRevision(pos int) (domain.Revision, error) {
	if err := a.requireReady(); err != nil {
		return domain.Revision{}, err
	}
	return a.sync.RevisionAt(pos)
}

// GetRevisionCursor returns the history cursor and the revision count.
func (a *App) GetRevisionCursor() map[string]int {
	if a.sync == nil {
		return map[string]int{"position": 0, "count": 0}
	}
	position, count := a.sync.RevisionCursor()
	return map[string]int{"position": position, "count": count}
}

// OlderRevision steps the history cursor back.
func (a *App) OlderRevision() (domain.Revision, error) {
	if err := a.requireReady(); err != nil {
		return domain.Revision{}, err
	}
	return a.sync.OlderRevision()
}

// NewerRevision steps the history cursor forward.
func (a *App) NewerRevision() (domain.Revision, error) {
	if err := a.requireReady(); err != nil {
		return domain.Revision{}, err
	}
	return a.sync.NewerRevision()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	info := map[string]string{
		"apiBase":      a.cfg.Backend.APIBaseURL,
		"pollInterval": a.cfg.Sync.PollInterval.String(),
		"configFile":   a.cfg.Source,
		"cache":        "off",
		"live":         "false",
	}
	if a.cfg.Cache.Enabled {
		info["cache"] = a.cfg.Cache.Path
	}
	if a.services.Transport != nil {
		if a.services.Transport.Live() {
			info["live"] = "true"
		}
		if err := a.services.Transport.LastError(); err != nil {
			info["lastError"] = err.Error()
		}
	}
	if a.sync != nil {
		info["session"] = a.sync.SessionID()
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.sync == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// TasksChanged emits the visible task list.
func (a *App) TasksChanged(tasks []domain.Task) {
	a.emit(eventTasks, tasks)
}

// UnitsChanged emits the applied unit snapshot of a session.
func (a *App) UnitsChanged(sessionID string, units []domain.Unit) {
	a.emit(eventUnits, map[string]any{"sessionId": sessionID, "units": units})
}

// RevisionsChanged emits the newest-first revision list of a session.
func (a *App) RevisionsChanged(sessionID string, revisions []domain.Revision) {
	a.emit(eventRevisions, map[string]any{"sessionId": sessionID, "revisions": revisions})
}

// EditorAppend emits a generated chunk for the editor.
func (a *App) EditorAppend(text string) {
	a.emit(eventAppend, map[string]string{"text": text})
}

func (a *App) SessionsChanged() {
	a.emit(eventSessions, nil)
}

func (a *App) SettingsChanged() {
	a.emit(eventSettings, nil)
}

func (a *App) ConnectionChanged(live bool) {
	a.emit(eventConnection, map[string]bool{"live": live})
}

// SyncError emits non-fatal engine errors to the UI.
func (a *App) SyncError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	if payload == nil {
		runtime.EventsEmit(a.ctx, name)
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeRefresh:
		return "Could not refresh blocks"
	case domain.ErrorCodeReorder:
		return "Reorder failed; order restored from server"
	case domain.ErrorCodeGeneration:
		return "Generation failed"
	case domain.ErrorCodeRevisions:
		return "Revision history unavailable"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
