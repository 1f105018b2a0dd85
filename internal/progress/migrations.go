package progress

const schema = `
CREATE TABLE IF NOT EXISTS document_progress (
	document_id      TEXT PRIMARY KEY,
	doc_type         TEXT NOT NULL,
	status           TEXT NOT NULL,
	claimed_by       TEXT,
	claimed_at       DATETIME,
	attempts         INTEGER NOT NULL DEFAULT 0,
	last_error       TEXT,
	duration_ms      INTEGER,
	content_hash     TEXT,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_document_progress_status ON document_progress(status);

CREATE TABLE IF NOT EXISTS ingestion_runs (
	run_id           TEXT PRIMARY KEY,
	doc_type         TEXT NOT NULL,
	started_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	finished_at      DATETIME,
	documents_total  INTEGER NOT NULL DEFAULT 0,
	documents_done   INTEGER NOT NULL DEFAULT 0,
	documents_failed INTEGER NOT NULL DEFAULT 0
);
`
