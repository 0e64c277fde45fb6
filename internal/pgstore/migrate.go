package pgstore

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/TobiSchelling/catchfeed/internal/achievements"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func migrate(db *sqlx.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  name TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	applied := []string{}
	if err := db.Select(&applied, `SELECT name FROM schema_migrations`); err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	for _, path := range names {
		name := strings.TrimPrefix(path, "migrations/")
		if done[name] {
			continue
		}
		content, err := migrationFS.ReadFile(path)
		if err != nil {
			return err
		}
		slog.Info("Applying migration", slog.String("name", name))
		tx, err := db.Beginx()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return seedCatalog(db)
}

func seedCatalog(db *sqlx.DB) error {
	for _, a := range achievements.DefaultCatalog() {
		_, err := db.Exec(`
INSERT INTO achievements (code, name, description, category, icon, is_active, sort_order)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (code) DO NOTHING
`, a.Code, a.Name, a.Description, a.Category, a.Icon, a.IsActive, a.SortOrder)
		if err != nil {
			return fmt.Errorf("seeding %s: %w", a.Code, err)
		}
	}
	return nil
}
