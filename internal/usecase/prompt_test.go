package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"scribedesk/internal/domain"
)

func TestBuildMessagesOmitsEmptySystem(t *testing.T) {
	t.Parallel()

	deleted := textUnit("d", "gone")
	deleted.SoftDeleted = true
	units := []domain.Unit{textUnit("a", " first "), deleted, textUnit("b", ""), textUnit("c", "second")}

	got := BuildMessages("  ", "", units)
	want := []domain.Message{{Role: domain.RoleUser, Content: "first\n\nsecond"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected messages: %+v", got)
	}
}

func TestBuildMessagesInstructionOnly(t *testing.T) {
	t.Parallel()

	got := BuildMessages("sys", "Translate", nil)
	if len(got) != 2 || got[0].Role != domain.RoleSystem || got[1].Content != "Translate" {
		t.Fatalf("unexpected messages: %+v", got)
	}
}

type failingRevisionStore struct{ fakeRevisionStore }

func (*failingRevisionStore) CreateRevision(context.Context, string, string, string) (domain.Revision, error) {
	return domain.Revision{}, errors.New("disk full")
}

func TestRevisionFinalizerSkipsEmptyOutput(t *testing.T) {
	t.Parallel()

	store := &fakeRevisionStore{}
	f := newRevisionFinalizer(store, &fakeEventSink{})

	rev, err := f.Finalize(context.Background(), "s1", "   ")
	if err != nil || rev != nil {
		t.Fatalf("expected nothing stored, got %+v err=%v", rev, err)
	}
	rev, err = f.Finalize(context.Background(), "", "text")
	if err != nil || rev != nil {
		t.Fatalf("expected nothing stored without a session, got %+v err=%v", rev, err)
	}
	if len(store.created) != 0 {
		t.Fatalf("unexpected revisions: %+v", store.created)
	}
}

func TestRevisionFinalizerReportsSaveFailure(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	f := newRevisionFinalizer(&failingRevisionStore{}, events)

	if _, err := f.Finalize(context.Background(), "s1", "text"); err == nil {
		t.Fatalf("expected save error")
	}
	if codes := events.errorCodes(); len(codes) != 1 || codes[0] != domain.ErrorCodeRevisions {
		t.Fatalf("unexpected error codes: %v", codes)
	}
}

func TestOutputAggregatorForwardsChunks(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	agg := newOutputAggregator(events)
	agg.Add("A")
	agg.Add("")
	agg.Add(" B")

	if agg.Output() != "A B" || agg.Chunks() != 2 {
		t.Fatalf("unexpected aggregate: %q (%d chunks)", agg.Output(), agg.Chunks())
	}
	if !reflect.DeepEqual(events.appended, []string{"A", " B"}) {
		t.Fatalf("unexpected appends: %v", events.appended)
	}
}
