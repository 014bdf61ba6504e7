package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestActivityLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	id, err := store.RecordActivity(ctx, Activity{Room: "design", Username: "alice", Action: ActionCreateRoom})
	if err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected id > 0")
	}
	if _, err := store.RecordActivity(ctx, Activity{
		Room:     "design",
		Username: "alice",
		Action:   ActionUpload,
		Filename: "notes.txt",
		Size:     5,
		SHA256:   "abc",
	}); err != nil {
		t.Fatalf("RecordActivity upload: %v", err)
	}
	if _, err := store.RecordActivity(ctx, Activity{Room: "general", Username: "bob", Action: ActionJoinRoom}); err != nil {
		t.Fatalf("RecordActivity join: %v", err)
	}

	rows, err := store.ListActivity(ctx, "design", 10)
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows for design, got %d", len(rows))
	}
	if rows[0].Action != ActionUpload || rows[0].Filename != "notes.txt" || rows[0].Size != 5 {
		t.Fatalf("expected newest row first, got %+v", rows[0])
	}
	if rows[1].Action != ActionCreateRoom {
		t.Fatalf("unexpected oldest row: %+v", rows[1])
	}
	if rows[0].CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}

	all, err := store.ListActivity(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListActivity all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows overall, got %d", len(all))
	}
}

func TestActivityLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	base := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := store.RecordActivity(ctx, Activity{
			Room:      "general",
			Username:  "carol",
			Action:    ActionDownload,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("RecordActivity %d: %v", i, err)
		}
	}
	rows, err := store.ListActivity(ctx, "general", 2)
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected limit to apply, got %d rows", len(rows))
	}
}

func TestActivityRequiresRoomAndAction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := store.RecordActivity(ctx, Activity{Username: "dave", Action: ActionUpload}); !errors.Is(err, ErrInvalidActivity) {
		t.Fatalf("expected ErrInvalidActivity, got %v", err)
	}
	if _, err := store.RecordActivity(ctx, Activity{Room: "general", Username: "dave"}); !errors.Is(err, ErrInvalidActivity) {
		t.Fatalf("expected ErrInvalidActivity, got %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "sqlite://file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
