package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func TestOpenAppliesAllSteps(t *testing.T) {
	db := openTestDB(t)

	v, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != latestVersion() {
		t.Errorf("schema at %d, want %d", v, latestVersion())
	}
}

func TestReopenRunsNoSteps(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	first.Close()

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer conn.Close()

	n, err := migrate(ctx, conn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no pending steps on reopen, ran %d", n)
	}
}

func TestPending(t *testing.T) {
	if got := len(pending(0)); got != len(steps) {
		t.Errorf("pending(0) = %d steps, want %d", got, len(steps))
	}
	if got := pending(latestVersion()); got != nil {
		t.Errorf("expected nothing pending at latest, got %d", len(got))
	}
	if got := pending(1); len(got) == 0 || got[0].version != 2 {
		t.Errorf("expected pending(1) to start at version 2")
	}
}

func TestCatalogSeeded(t *testing.T) {
	db := openTestDB(t)

	catalog, err := db.ActiveAchievements(context.Background())
	if err != nil {
		t.Fatalf("ActiveAchievements: %v", err)
	}
	if len(catalog) != 12 {
		t.Fatalf("expected 12 seeded achievements, got %d", len(catalog))
	}
	if catalog[0].Code != "rewards_entered" {
		t.Errorf("expected rewards_entered first by sort order, got %s", catalog[0].Code)
	}
	for i := 1; i < len(catalog); i++ {
		if catalog[i].SortOrder < catalog[i-1].SortOrder {
			t.Errorf("catalog not ordered at %d", i)
		}
	}
}
