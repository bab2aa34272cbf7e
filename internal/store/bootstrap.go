package store

import (
	"context"
	"fmt"
)

const systemTablesSQL = `
CREATE TABLE IF NOT EXISTS _audit_events (
    id          BIGSERIAL PRIMARY KEY,
    request_id  TEXT,
    event_type  TEXT NOT NULL,
    actor       TEXT,
    route       TEXT,
    ip          TEXT,
    detail      JSONB,
    created_at  TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON _audit_events(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON _audit_events(event_type);
`

// Bootstrap creates the service's own tables. Application tables are never
// touched here.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, systemTablesSQL); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	return nil
}
