package history_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"nutriflow/internal/allergy"
	"nutriflow/internal/history"
	"nutriflow/internal/inventory"
	"nutriflow/internal/meal"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleCycle(id string, finished time.Time) history.Cycle {
	taken := inventory.Diff(inventory.Snapshot{"apple", "apple", "milk"}, inventory.Snapshot{"apple"})
	return history.Cycle{
		ID:         id,
		Source:     "capture",
		Outcome:    "success",
		StartedAt:  finished.Add(-30 * time.Second),
		FinishedAt: finished,
		Before:     inventory.Snapshot{"apple", "apple", "milk"},
		After:      inventory.Snapshot{"apple"},
		Taken:      taken,
		Warnings: []allergy.Warning{{
			Item: "milk", MatchedAllergen: "lactose", Rule: allergy.RuleTable,
			Message: "WARNING: milk contains lactose which you're allergic to!",
		}},
		MealKind: "success",
		MealText: "MEAL 1: Apple Porridge",
		Meals:    []meal.Meal{{Name: "Apple Porridge", Ingredients: []string{"apple", "milk"}}},
	}
}

func TestRecordAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	finished := time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC)
	if err := store.Record(ctx, sampleCycle("c1", finished)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Outcome != "success" || !got.FinishedAt.Equal(finished) || got.Duration() != 30*time.Second {
		t.Fatalf("unexpected cycle: %+v", got)
	}
	if got.Taken.Count("apple") != 1 || got.Taken.Count("milk") != 1 {
		t.Fatalf("taken = %v", got.Taken.Map())
	}
	if len(got.Before) != 3 || len(got.After) != 1 {
		t.Fatalf("snapshots = %v / %v", got.Before, got.After)
	}
	if len(got.Warnings) != 1 || got.Warnings[0].Rule != allergy.RuleTable {
		t.Fatalf("warnings = %+v", got.Warnings)
	}
	if len(got.Meals) != 1 || got.Meals[0].Name != "Apple Porridge" {
		t.Fatalf("meals = %+v", got.Meals)
	}
}

func TestGetUnknown(t *testing.T) {
	store := openStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordEmptyCycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	c := history.Cycle{ID: "empty", Source: "capture", Outcome: "nothing_to_compare", FinishedAt: time.Now()}
	if err := store.Record(ctx, c); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := store.Get(ctx, "empty")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Taken.Empty() || len(got.Warnings) != 0 || !got.StartedAt.IsZero() {
		t.Fatalf("unexpected empty cycle: %+v", got)
	}
	if err := store.Record(ctx, history.Cycle{}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestListNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		finished := base.Add(time.Duration(i) * time.Hour).Add(time.Duration(i*100) * time.Millisecond)
		if err := store.Record(ctx, sampleCycle(fmt.Sprintf("c%d", i), finished)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	cycles, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, c := range cycles {
		ids = append(ids, c.ID)
	}
	if strings.Join(ids, ",") != "c4,c3,c2" {
		t.Fatalf("ids = %v", ids)
	}
	n, err := store.Count(ctx)
	if err != nil || n != 5 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestRecordReplacesSameID(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	c := sampleCycle("dup", time.Now())
	_ = store.Record(ctx, c)
	c.Outcome = "failed"
	c.ErrorKind = "meal_service_unreachable"
	if err := store.Record(ctx, c); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, _ := store.Get(ctx, "dup")
	if got.Outcome != "failed" || got.ErrorKind != "meal_service_unreachable" {
		t.Fatalf("cycle not replaced: %+v", got)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("count = %d", n)
	}
}

func TestPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()
	_ = store.Record(ctx, sampleCycle("old", now.Add(-48*time.Hour)))
	_ = store.Record(ctx, sampleCycle("new", now))
	removed, err := store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil || removed != 1 {
		t.Fatalf("Prune = %d, %v", removed, err)
	}
	if _, err := store.Get(ctx, "old"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("old cycle should be gone: %v", err)
	}
}

func TestSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	_ = db.Close()

	if _, err := history.Open(path); !errors.Is(err, history.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
