package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vmcpio/vmcpd/pkg/store"
)

// UsageLogStore implements store.UsageLogStore using SQLite.
type UsageLogStore struct {
	wrapper *DB
	db      *sql.DB
}

// NewUsageLogStore creates a SQLite-backed UsageLogStore.
func NewUsageLogStore(db *DB) *UsageLogStore {
	return &UsageLogStore{wrapper: db, db: db.DB()}
}

var _ store.UsageLogStore = (*UsageLogStore)(nil)

// Append inserts a new usage log row.
func (s *UsageLogStore) Append(ctx context.Context, entry store.UsageLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_log (vmcp_id, method, tool_name, server_name, started_at, duration_ms, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.VMCPID, entry.Method, entry.ToolName, entry.ServerName,
		entry.StartedAt, entry.DurationMS, entry.Outcome,
	)
	if err != nil {
		return fmt.Errorf("inserting usage log entry: %w", err)
	}
	return nil
}

// ListByVMCP returns the most recent usage log rows for vmcpID, newest
// first. limit <= 0 means unbounded.
func (s *UsageLogStore) ListByVMCP(ctx context.Context, vmcpID string, limit int) ([]store.UsageLogEntry, error) {
	query := `
		SELECT id, vmcp_id, method, tool_name, server_name, started_at, duration_ms, outcome
		FROM usage_log WHERE vmcp_id = ? ORDER BY started_at DESC`
	args := []any{vmcpID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage log: %w", err)
	}
	defer rows.Close()

	var out []store.UsageLogEntry
	for rows.Next() {
		var e store.UsageLogEntry
		if err := rows.Scan(&e.ID, &e.VMCPID, &e.Method, &e.ToolName, &e.ServerName,
			&e.StartedAt, &e.DurationMS, &e.Outcome); err != nil {
			return nil, fmt.Errorf("scanning usage log row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage log rows: %w", err)
	}
	return out, nil
}
