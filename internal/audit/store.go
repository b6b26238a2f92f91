package audit

import (
	"context"
	"database/sql"
)

// MySQLSink persists events into the append-only audit_events table.
// The table is insert-only from this engine's point of view: no update
// or delete statement exists anywhere in this package.
//
// Expected schema:
//
//	CREATE TABLE audit_events (
//	  id             CHAR(36)     NOT NULL PRIMARY KEY,
//	  occurred_at    DATETIME(6)  NOT NULL,
//	  actor_id       BIGINT UNSIGNED NULL,
//	  action         VARCHAR(64)  NOT NULL,
//	  target         VARCHAR(128) NULL,
//	  result         VARCHAR(16)  NOT NULL,
//	  detail         VARCHAR(255) NULL,
//	  client_ip_hash CHAR(64)     NULL,
//	  KEY idx_occurred_at (occurred_at),
//	  KEY idx_actor (actor_id)
//	);
type MySQLSink struct{ DB *sql.DB }

func NewMySQLSink(db *sql.DB) *MySQLSink { return &MySQLSink{DB: db} }

// Write inserts a single event row.
func (s *MySQLSink) Write(ctx context.Context, ev Event) error {
	var actor interface{}
	if ev.ActorID != 0 {
		actor = ev.ActorID
	}
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO audit_events (id, occurred_at, actor_id, action, target, result, detail, client_ip_hash) VALUES (?,?,?,?,?,?,?,?)",
		ev.ID, ev.Timestamp.UTC(), actor, ev.Action, ev.Target, string(ev.Result), ev.Detail, ev.ClientIPHash)
	return err
}
