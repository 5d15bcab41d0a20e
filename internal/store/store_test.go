package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db, slog.New(slog.DiscardHandler))
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, err := s.CreateSession(ctx, s.DB(), "", "My Session")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected generated session id")
	}

	got, err := s.GetSession(ctx, s.DB(), sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Name != "My Session" {
		t.Errorf("name = %q", got.Name)
	}

	if err := s.RenameSession(ctx, s.DB(), sess.ID, "Renamed"); err != nil {
		t.Fatalf("RenameSession: %v", err)
	}
	got, _ = s.GetSession(ctx, s.DB(), sess.ID)
	if got.Name != "Renamed" {
		t.Errorf("name after rename = %q", got.Name)
	}

	sessions, err := s.ListSessions(ctx, s.DB(), 10, 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(sessions))
	}

	if err := s.DeleteSession(ctx, s.DB(), sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(ctx, s.DB(), sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSessionNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.GetSession(ctx, s.DB(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession: expected ErrNotFound, got %v", err)
	}
	if err := s.RenameSession(ctx, s.DB(), "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RenameSession: expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteSession(ctx, s.DB(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteSession: expected ErrNotFound, got %v", err)
	}
}

func TestMessagesOrdered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, _ := s.CreateSession(ctx, s.DB(), "", "test")
	for _, content := range []string{"one", "two", "three"} {
		if _, err := s.AppendMessage(ctx, s.DB(), sess.ID, RoleUser, content); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.MessagesBySession(ctx, s.DB(), sess.ID)
	if err != nil {
		t.Fatalf("MessagesBySession: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if msgs[i].Content != want {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Content, want)
		}
	}

	count, err := s.CountMessages(ctx, s.DB(), sess.ID)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestDeleteSessionRemovesChildren(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, _ := s.CreateSession(ctx, s.DB(), "", "test")
	s.AppendMessage(ctx, s.DB(), sess.ID, RoleUser, "hello")
	s.UpsertSummary(ctx, s.DB(), sess.ID, 1, "summary")

	if err := s.DeleteSession(ctx, s.DB(), sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	count, _ := s.CountMessages(ctx, s.DB(), sess.ID)
	if count != 0 {
		t.Errorf("messages after delete = %d", count)
	}
	if _, err := s.SummaryBySession(ctx, s.DB(), sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected summary gone, got %v", err)
	}
}

func TestSummaryUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, _ := s.CreateSession(ctx, s.DB(), "", "test")

	if _, err := s.UpsertSummary(ctx, s.DB(), sess.ID, 15, "first"); err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}
	if _, err := s.UpsertSummary(ctx, s.DB(), sess.ID, 25, "second"); err != nil {
		t.Fatalf("UpsertSummary (overwrite): %v", err)
	}

	sum, err := s.SummaryBySession(ctx, s.DB(), sess.ID)
	if err != nil {
		t.Fatalf("SummaryBySession: %v", err)
	}
	if sum.MessageCount != 25 || sum.SummaryText != "second" {
		t.Errorf("summary = %d/%q, want 25/second", sum.MessageCount, sum.SummaryText)
	}
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, _ := s.CreateSession(ctx, s.DB(), "", "test")

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := s.AppendMessage(ctx, tx, sess.ID, RoleUser, "doomed"); err != nil {
		t.Fatalf("AppendMessage in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	count, _ := s.CountMessages(ctx, s.DB(), sess.ID)
	if count != 0 {
		t.Errorf("messages after rollback = %d, want 0", count)
	}
}

func TestTouchSessionAdvancesTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, _ := s.CreateSession(ctx, s.DB(), "", "test")
	before, _ := s.GetSession(ctx, s.DB(), sess.ID)

	if err := s.TouchSession(ctx, s.DB(), sess.ID); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}

	after, _ := s.GetSession(ctx, s.DB(), sess.ID)
	if after.UpdatedAt.Before(before.UpdatedAt) {
		t.Errorf("updated_at went backwards: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
}
