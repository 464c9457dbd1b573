// CLAUDE:SUMMARY DDL for the eCabinet event log database: business events, per-document preview outcomes view, HTTP request logs.
package observability

import (
	"database/sql"
	"fmt"
)

// Schema is the event log DDL. Idempotent. Timestamps are unix seconds.
const Schema = `
CREATE TABLE IF NOT EXISTS business_event_logs (
    event_id     TEXT PRIMARY KEY,
    event_type   TEXT NOT NULL,
    service_name TEXT NOT NULL,
    entity_type  TEXT,
    entity_id    TEXT,
    user_id      TEXT,
    action       TEXT NOT NULL,
    details      TEXT,
    success      INTEGER NOT NULL DEFAULT 1,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_entity ON business_event_logs(entity_type, entity_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_created ON business_event_logs(created_at);

-- One row per document and preview strategy. action holds the strategy of
-- preview.resolved events; success = 0 marks an Error state.
CREATE VIEW IF NOT EXISTS preview_outcomes AS
SELECT entity_id AS document_id,
       action AS strategy,
       COUNT(*) AS resolutions,
       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END) AS failures,
       MAX(created_at) AS last_at
FROM business_event_logs
WHERE event_type = 'preview.resolved'
GROUP BY entity_id, action;

CREATE TABLE IF NOT EXISTS http_request_logs (
    log_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    method      TEXT NOT NULL,
    path        TEXT NOT NULL,
    status_code INTEGER NOT NULL,
    bytes_out   INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL,
    trace_id    TEXT,
    ip_address  TEXT,
    user_agent  TEXT,
    created_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_http_logs_created ON http_request_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_http_logs_trace ON http_request_logs(trace_id);
`

// Init applies Schema.
func Init(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("observability: init: %w", err)
	}
	return nil
}
