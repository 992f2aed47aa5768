package memory

import (
	"context"
	"errors"
	"testing"

	"caselab-service/internal/domain"
)

func TestSessionStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	session := domain.Session{ID: "s1", Code: "ABC234", Version: 1, Active: true}
	if err := store.Create(ctx, &session); err != nil {
		t.Fatalf("create: %v", err)
	}

	first := session
	first.CurrentReleasedSection = 1
	if err := store.Update(ctx, &first, 1); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", first.Version)
	}

	// A writer still holding version 1 loses.
	stale := session
	stale.CurrentReleasedSection = 1
	if err := store.Update(ctx, &stale, 1); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 2 || got.CurrentReleasedSection != 1 {
		t.Fatalf("unexpected stored state: %+v", got)
	}

	missing := domain.Session{ID: "nope", Version: 1}
	if err := store.Update(ctx, &missing, 1); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestSessionStoreCodeLookupAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	session := domain.Session{ID: "s1", Code: "ABC234", Version: 1}
	_ = store.Create(ctx, &session)

	got, err := store.GetByCode(ctx, "ABC234")
	if err != nil || got.ID != "s1" {
		t.Fatalf("lookup by code: %v %+v", err, got)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetByCode(ctx, "ABC234"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected code mapping removed, got %v", err)
	}
}

func TestSessionStoreListActive(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	_ = store.Create(ctx, &domain.Session{ID: "a", Code: "AAAAAA", Version: 1, Active: true})
	_ = store.Create(ctx, &domain.Session{ID: "b", Code: "BBBBBB", Version: 1, Active: false})

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].ID != "a" {
		t.Fatalf("expected only active session, got %+v", active)
	}
}

func TestResponseStoreUpsertKeepsRowIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewResponseStore()

	first := domain.Response{ID: "r1", SessionID: "s1", StudentID: "stu", QuestionID: "q1", Response: "Wind"}
	if err := store.Upsert(ctx, &first); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second := domain.Response{ID: "r2", SessionID: "s1", StudentID: "stu", QuestionID: "q1", Response: "Heat"}
	if err := store.Upsert(ctx, &second); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if second.ID != "r1" {
		t.Fatalf("overwrite must keep the original row id, got %s", second.ID)
	}

	rows, err := store.ListBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].Response != "Heat" {
		t.Fatalf("expected single overwritten row, got %+v", rows)
	}
}
