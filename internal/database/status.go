package database

import (
	"context"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

// Stats returns row counts of the main tables.
func (db *DB) Stats(ctx context.Context) (*harvest.StoreStatus, error) {
	s := &harvest.StoreStatus{}
	for _, q := range s.Tables() {
		if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.Table).Scan(q.Dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
