package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/evosim/internal/experiment"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(id string, started time.Time) *experiment.Result {
	return &experiment.Result{
		ID:         id,
		Variant:    "pggi",
		Seed:       42,
		Agents:     100,
		R:          3,
		CoopLevel:  []float64{0.5, 0.6, 0.7},
		InspLevel:  []float64{0.1, 0.1, 0.2},
		MeanCoop:   0.6,
		MeanInsp:   0.4 / 3,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
}

func TestSchemaVersion(t *testing.T) {
	db := openTestDB(t)
	v, err := db.GetMeta(context.Background(), "schema_version")
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Errorf("schema version %q", v)
	}
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.GetMeta(ctx, "last_run"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := db.SaveMeta(ctx, "last_run", "a"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMeta(ctx, "last_run", "b"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetMeta(ctx, "last_run")
	if err != nil || v != "b" {
		t.Errorf("got %q, %v", v, err)
	}
}

func TestSaveLoadRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	want := sampleRun("run-1", started)
	if err := db.SaveRun(ctx, want, map[string]int{"seed": 42}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := db.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if got.Variant != want.Variant || got.Seed != want.Seed || got.Agents != want.Agents || got.R != want.R {
		t.Errorf("header mismatch: %+v", got.Result)
	}
	if len(got.CoopLevel) != 3 || got.CoopLevel[2] != 0.7 || got.InspLevel[2] != 0.2 {
		t.Errorf("series mismatch: %v %v", got.CoopLevel, got.InspLevel)
	}
	if !got.StartedAt.Equal(started) || !got.FinishedAt.Equal(started.Add(time.Second)) {
		t.Errorf("timestamps %v %v", got.StartedAt, got.FinishedAt)
	}
	if string(got.Config) != `{"seed":42}` {
		t.Errorf("config %s", got.Config)
	}
}

func TestSaveRunDuplicateRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	run := sampleRun("dup", time.Now().UTC())

	if err := db.SaveRun(ctx, run, nil); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveRun(ctx, run, nil); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
	got, err := db.LoadRun(ctx, "dup")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.CoopLevel) != 3 {
		t.Errorf("series should be untouched, got %d rows", len(got.CoopLevel))
	}
}

func TestLoadRunNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.LoadRun(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := db.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour)), nil); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := db.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("unexpected order: %+v", runs)
	}
	if !runs[0].StartedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("started_at %v", runs[0].StartedAt)
	}
}

func TestSaveLoadSweep(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	started := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

	want := &experiment.SweepResult{
		ID:           "sweep-1",
		Variant:      "network",
		Seed:         7,
		Agents:       50,
		Degree:       4,
		Realizations: 2,
		Runs:         3,
		Points: []experiment.Point{
			{R: 1, Eta: 0.2, MeanCoop: 0.1, MeanInsp: 0.3, StdCoop: 0.01, StdInsp: 0.02, Runs: 6},
			{R: 2, Eta: 0.4, MeanCoop: 0.5, MeanInsp: 0.2, StdCoop: 0.03, StdInsp: 0.04, Runs: 6},
		},
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	}
	if err := db.SaveSweep(ctx, want, nil); err != nil {
		t.Fatalf("SaveSweep: %v", err)
	}

	got, err := db.LoadSweep(ctx, "sweep-1")
	if err != nil {
		t.Fatalf("LoadSweep: %v", err)
	}
	if got.Degree != 4 || got.Realizations != 2 || got.Runs != 3 {
		t.Errorf("header mismatch: %+v", got.SweepResult)
	}
	if len(got.Points) != 2 || got.Points[1] != want.Points[1] {
		t.Errorf("points mismatch: %+v", got.Points)
	}
	if string(got.Config) != "{}" {
		t.Errorf("nil config stored as %s", got.Config)
	}

	list, err := db.ListSweeps(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "sweep-1" || !list[0].FinishedAt.Equal(started.Add(time.Minute)) {
		t.Errorf("unexpected list: %+v", list)
	}

	if _, err := db.LoadSweep(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveRunCancelledContext(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := db.SaveRun(ctx, sampleRun("x", time.Now()), nil); err == nil {
		t.Error("expected error on cancelled context")
	}
}
