package store

import "github.com/hazyhaar/ecabinet/feed"

// Schema creates the documents and meetings tables and the change-log
// triggers on both. Idempotent.
var Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	size_label TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT '',
	owner_id   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);

CREATE TABLE IF NOT EXISTS meetings (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	room_id      TEXT NOT NULL DEFAULT '',
	host_id      TEXT NOT NULL DEFAULT '',
	start_time   TEXT NOT NULL DEFAULT '',
	end_time     TEXT NOT NULL DEFAULT '',
	date         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'upcoming',
	participants TEXT NOT NULL DEFAULT '[]',
	document_ids TEXT NOT NULL DEFAULT '[]'
);
` + feed.Schema + feed.Triggers("documents", "id") + feed.Triggers("meetings", "id")
