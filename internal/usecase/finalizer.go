package usecase

import (
	"context"
	"strings"

	"scribedesk/internal/domain"
	"scribedesk/internal/ports"
)

// RevisionNoteGenerated tags revisions captured from a completed generation.
const RevisionNoteGenerated = "LLM Output"

type revisionFinalizer struct {
	store  ports.RevisionStore
	events ports.EventSink
}

func newRevisionFinalizer(store ports.RevisionStore, events ports.EventSink) revisionFinalizer {
	return revisionFinalizer{store: store, events: events}
}

// Finalize stores a completed generation as a revision. Empty output and
// generations run without a selected session are not stored.
func (f revisionFinalizer) Finalize(ctx context.Context, sessionID string, output string) (*domain.Revision, error) {
	if f.store == nil || sessionID == "" || strings.TrimSpace(output) == "" {
		return nil, nil
	}

	rev, err := f.store.CreateRevision(ctx, sessionID, output, RevisionNoteGenerated)
	if err != nil {
		f.events.SyncError(domain.ErrorCodeRevisions, "generation finished but saving the revision failed")
		return nil, err
	}
	return &rev, nil
}
