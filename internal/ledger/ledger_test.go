package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/scene"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	return db
}

func sampleSnapshot(objects int) scene.Snapshot {
	snap := scene.Snapshot{
		Taken:     time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
		Active:    true,
		Watches:   1,
		Callbacks: objects + 5,
		Color:     scene.SlotState{Width: 1280, Height: 720, Valid: true},
		Depth:     scene.SlotState{Width: 1280, Height: 720, Valid: true},
		Bindings: []scene.BindingState{
			{Engine: 3, Shader: 2, Type: "lambert", TypeName: "lambert", Material: 7, Meshes: 1, Watched: true},
		},
	}
	for i := 0; i < objects; i++ {
		snap.Objects = append(snap.Objects, scene.ObjectState{Mesh: uint64(10 + i), Material: 1, Default: i > 0})
	}
	return snap
}

func TestInitSchemaIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.InitSchema(); err != nil {
		t.Errorf("second InitSchema failed: %v", err)
	}
}

func TestRecordAndLatestSnapshot(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.StartSession(ctx, "replay")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	for _, n := range []int{1, 3} {
		if err := db.RecordSnapshot(ctx, id, sampleSnapshot(n)); err != nil {
			t.Fatalf("RecordSnapshot failed: %v", err)
		}
	}

	snap, err := db.LatestSnapshot(ctx, id)
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if len(snap.Objects) != 3 {
		t.Errorf("latest snapshot has %d objects, want 3", len(snap.Objects))
	}
	if snap.DefaultObjects() != 2 || snap.BuiltMaterials() != 1 {
		t.Errorf("default = %d, built = %d", snap.DefaultObjects(), snap.BuiltMaterials())
	}
	if snap.Color.Width != 1280 || !snap.Taken.Equal(sampleSnapshot(0).Taken) {
		t.Errorf("snapshot = %+v", snap)
	}

	newest, err := db.LatestSnapshot(ctx, 0)
	if err != nil || len(newest.Objects) != 3 {
		t.Errorf("LatestSnapshot(0) = %+v, %v", newest, err)
	}
}

func TestLatestSnapshotNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.LatestSnapshot(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestSnapshot() = %v, want ErrNotFound", err)
	}
}

func TestEventsAndSessions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.StartSession(ctx, "first")
	if err != nil {
		t.Fatal(err)
	}
	second, err := db.StartSession(ctx, "second")
	if err != nil {
		t.Fatal(err)
	}

	events := []scene.Event{
		{Kind: scene.EventMeshAdded, Node: 4},
		{Kind: scene.EventMeshAdded, Node: 6},
		{Kind: scene.EventShaderConnected, Node: 2, Engine: 3},
		{Kind: scene.EventDropped, Node: 9, Error: "node not found"},
	}
	for _, ev := range events {
		if err := db.RecordEvent(ctx, second, ev); err != nil {
			t.Fatalf("RecordEvent failed: %v", err)
		}
	}
	if err := db.RecordSnapshot(ctx, second, sampleSnapshot(2)); err != nil {
		t.Fatal(err)
	}

	counts, err := db.EventCounts(ctx, second)
	if err != nil {
		t.Fatalf("EventCounts failed: %v", err)
	}
	if counts[scene.EventMeshAdded] != 2 || counts[scene.EventShaderConnected] != 1 || counts[scene.EventDropped] != 1 {
		t.Errorf("counts = %v", counts)
	}

	sessions, err := db.Sessions(ctx, 0)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	if sessions[0].ID != second || sessions[0].Events != 4 || sessions[0].Snapshots != 1 {
		t.Errorf("newest session = %+v", sessions[0])
	}
	if sessions[1].ID != first || sessions[1].Name != "first" || sessions[1].StartedAt.IsZero() {
		t.Errorf("oldest session = %+v", sessions[1])
	}
}

func TestCloseTwice(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "sub", "ledger.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
