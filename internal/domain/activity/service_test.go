package activity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	entries   []*Entry
	appendErr error
}

func (m *mockRepo) Append(ctx context.Context, e *Entry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRepo) ListBySubject(ctx context.Context, subjectType string, subjectID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	var out []*Entry
	for _, e := range m.entries {
		if e.SubjectType == subjectType && e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return page(out, limit, offset)
}

func (m *mockRepo) ListByActor(ctx context.Context, actor string, limit, offset int) ([]*Entry, int, error) {
	var out []*Entry
	for _, e := range m.entries {
		if e.Actor == actor {
			out = append(out, e)
		}
	}
	return page(out, limit, offset)
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Entry, int, error) {
	return page(m.entries, limit, offset)
}

func page(entries []*Entry, limit, offset int) ([]*Entry, int, error) {
	total := len(entries)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return entries[offset:end], total, nil
}

func newTestService(repo *mockRepo) *Service {
	return NewService(repo, zerolog.Nop())
}

func TestRecord_AppendsEntry(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)

	subjectID := uuid.New()
	svc.Record(context.Background(), "alice", ActionTemplateCreated, "template", subjectID, map[string]string{"name": "ED Sepsis"})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	e := repo.entries[0]
	if e.Actor != "alice" {
		t.Errorf("expected actor alice, got %q", e.Actor)
	}
	if e.Action != ActionTemplateCreated {
		t.Errorf("expected action %q, got %q", ActionTemplateCreated, e.Action)
	}
	if e.SubjectID != subjectID {
		t.Errorf("subject id mismatch")
	}
	if e.ID == uuid.Nil {
		t.Error("expected generated entry id")
	}
	if e.OccurredAt.IsZero() {
		t.Error("expected occurred_at to be set")
	}

	var detail map[string]string
	if err := json.Unmarshal(e.Detail, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if detail["name"] != "ED Sepsis" {
		t.Errorf("expected detail name, got %v", detail)
	}
}

func TestRecord_NilDetail(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)

	svc.Record(context.Background(), "alice", ActionRunReset, "run", uuid.New(), nil)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	if repo.entries[0].Detail != nil {
		t.Errorf("expected nil detail, got %s", repo.entries[0].Detail)
	}
}

func TestRecord_RepoFailureDoesNotPanic(t *testing.T) {
	repo := &mockRepo{appendErr: errors.New("database unavailable")}
	svc := newTestService(repo)

	// A failed audit write is logged and swallowed.
	svc.Record(context.Background(), "alice", ActionRunLaunched, "run", uuid.New(), nil)

	if len(repo.entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(repo.entries))
	}
}

func TestListBySubject(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)

	templateID := uuid.New()
	runID := uuid.New()
	svc.Record(context.Background(), "alice", ActionTemplateCreated, "template", templateID, nil)
	svc.Record(context.Background(), "alice", ActionSnapshotTaken, "template", templateID, nil)
	svc.Record(context.Background(), "bob", ActionRunLaunched, "run", runID, nil)

	entries, total, err := svc.ListBySubject(context.Background(), "template", templateID, 10, 0)
	if err != nil {
		t.Fatalf("ListBySubject: %v", err)
	}
	if total != 2 {
		t.Errorf("expected total 2, got %d", total)
	}
	for _, e := range entries {
		if e.SubjectID != templateID {
			t.Errorf("unexpected subject id %s", e.SubjectID)
		}
	}
}

func TestListByActor(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)

	svc.Record(context.Background(), "alice", ActionTemplateCreated, "template", uuid.New(), nil)
	svc.Record(context.Background(), "bob", ActionRunLaunched, "run", uuid.New(), nil)
	svc.Record(context.Background(), "bob", ActionRunCompleted, "run", uuid.New(), nil)

	_, total, err := svc.ListByActor(context.Background(), "bob", 10, 0)
	if err != nil {
		t.Fatalf("ListByActor: %v", err)
	}
	if total != 2 {
		t.Errorf("expected total 2, got %d", total)
	}
}

func TestList_Pagination(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo)

	for i := 0; i < 5; i++ {
		svc.Record(context.Background(), "alice", ActionBackupCreated, "template", uuid.New(), nil)
	}

	entries, total, err := svc.List(context.Background(), 2, 4)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 {
		t.Errorf("expected total 5, got %d", total)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry on final page, got %d", len(entries))
	}
}
