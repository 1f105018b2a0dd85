// Package progress implements the embedded per-document-type progress
// store backing the ingestion pipeline's resumability: one row per
// document moving through discovered -> claimed -> fetched -> chunked ->
// enriched -> embedded -> upserted -> completed, or to failed.
package progress

import (
	"context"
	gosql "database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusClaimed    Status = "claimed"
	StatusFetched    Status = "fetched"
	StatusChunked    Status = "chunked"
	StatusEnriched   Status = "enriched"
	StatusEmbedded   Status = "embedded"
	StatusUpserted   Status = "upserted"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultStaleClaimAfter is how long a claim is honored before another
// worker may reclaim the document, per the resolved stale-claim Open
// Question.
const DefaultStaleClaimAfter = 10 * time.Minute

// Record is one document_progress row.
type Record struct {
	DocumentID string
	DocType    string
	Status     Status
	ClaimedBy  string
	ClaimedAt  time.Time
	Attempts    int
	LastError   string
	DurationMS  int64
	ContentHash string
	UpdatedAt   time.Time
}

// Stats summarizes a doc_type's progress for CLI/MCP reporting.
type Stats struct {
	Total     int
	Completed int
	Failed    int
	InFlight  int
}

// Store wraps a SQLite database holding progress for one document type.
type Store struct {
	db              *gosql.DB
	staleClaimAfter time.Duration
}

// Open opens (creating if needed) the SQLite file at path and applies the
// schema migrations.
func Open(path string) (*Store, error) {
	db, err := gosql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("progress: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("progress: migrate: %w", err)
	}
	return &Store{db: db, staleClaimAfter: DefaultStaleClaimAfter}, nil
}

// WithStaleClaimAfter overrides the stale-claim reclamation threshold.
func (s *Store) WithStaleClaimAfter(d time.Duration) *Store {
	s.staleClaimAfter = d
	return s
}

func (s *Store) Close() error { return s.db.Close() }

// Discover inserts a document in the discovered state if it is not
// already tracked. It is a no-op if the document is already known.
func (s *Store) Discover(ctx context.Context, documentID, docType string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_progress (document_id, doc_type, status)
		VALUES (?, ?, ?)
		ON CONFLICT(document_id) DO NOTHING
	`, documentID, docType, StatusDiscovered)
	return err
}

// Claim atomically transitions a document from discovered/failed, or from
// a claimed or intermediate stage whose claim is older than the stale
// threshold, into claimed by workerID. It returns false, nil if the
// document was not available to claim (already claimed by someone else,
// or already completed).
func (s *Store) Claim(ctx context.Context, documentID, workerID string) (bool, error) {
	// claimed_at is written as UTC by CURRENT_TIMESTAMP.
	cutoff := time.Now().UTC().Add(-s.staleClaimAfter)
	res, err := s.db.ExecContext(ctx, `
		UPDATE document_progress
		SET status = ?, claimed_by = ?, claimed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE document_id = ?
		  AND (
		    status IN (?, ?)
		    OR (status IN (?, ?, ?, ?, ?, ?) AND claimed_at < ?)
		  )
	`, StatusClaimed, workerID, documentID, StatusDiscovered, StatusFailed,
		StatusClaimed, StatusFetched, StatusChunked, StatusEnriched, StatusEmbedded, StatusUpserted, cutoff)
	if err != nil {
		return false, fmt.Errorf("progress: claim %s: %w", documentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Advance moves a claimed document to an intermediate stage (fetched,
// chunked, enriched, embedded, upserted).
func (s *Store) Advance(ctx context.Context, documentID string, status Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_progress
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE document_id = ?
	`, status, documentID)
	return err
}

// Complete marks a document as completed, recording its processing
// duration and its content hash for future idempotent re-ingestion
// checks.
func (s *Store) Complete(ctx context.Context, documentID, contentHash string, duration time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_progress
		SET status = ?, content_hash = ?, duration_ms = ?, last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE document_id = ?
	`, StatusCompleted, contentHash, duration.Milliseconds(), documentID)
	return err
}

// Fail marks a document as failed, recording the error and incrementing
// the attempt counter, leaving it eligible to be claimed again.
func (s *Store) Fail(ctx context.Context, documentID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_progress
		SET status = ?, last_error = ?, attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE document_id = ?
	`, StatusFailed, msg, documentID)
	return err
}

// Get returns the progress record for a document, or ok=false if unknown.
func (s *Store) Get(ctx context.Context, documentID string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, doc_type, status, COALESCE(claimed_by, ''), claimed_at,
		       attempts, COALESCE(last_error, ''), COALESCE(duration_ms, 0),
		       COALESCE(content_hash, ''), updated_at
		FROM document_progress WHERE document_id = ?
	`, documentID)
	var r Record
	var claimedAt gosql.NullTime
	err := row.Scan(&r.DocumentID, &r.DocType, &r.Status, &r.ClaimedBy, &claimedAt,
		&r.Attempts, &r.LastError, &r.DurationMS, &r.ContentHash, &r.UpdatedAt)
	if err == gosql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	if claimedAt.Valid {
		r.ClaimedAt = claimedAt.Time
	}
	return r, true, nil
}

// Stats summarizes progress for one document type.
func (s *Store) Stats(ctx context.Context, docType string) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_progress WHERE doc_type = ?`, docType)
	if err := row.Scan(&st.Total); err != nil {
		return st, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_progress WHERE doc_type = ? AND status = ?`, docType, StatusCompleted)
	if err := row.Scan(&st.Completed); err != nil {
		return st, err
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_progress WHERE doc_type = ? AND status = ?`, docType, StatusFailed)
	if err := row.Scan(&st.Failed); err != nil {
		return st, err
	}
	st.InFlight = st.Total - st.Completed - st.Failed
	return st, nil
}

// Iterate calls fn for every document in the given status, in
// document_id order, stopping early if fn returns an error.
func (s *Store) Iterate(ctx context.Context, docType string, status Status, fn func(Record) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, doc_type, status, COALESCE(claimed_by, ''), claimed_at,
		       attempts, COALESCE(last_error, ''), COALESCE(duration_ms, 0),
		       COALESCE(content_hash, ''), updated_at
		FROM document_progress
		WHERE doc_type = ? AND status = ?
		ORDER BY document_id
	`, docType, status)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r Record
		var claimedAt gosql.NullTime
		if err := rows.Scan(&r.DocumentID, &r.DocType, &r.Status, &r.ClaimedBy, &claimedAt,
			&r.Attempts, &r.LastError, &r.DurationMS, &r.ContentHash, &r.UpdatedAt); err != nil {
			return err
		}
		if claimedAt.Valid {
			r.ClaimedAt = claimedAt.Time
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// StartRun records the beginning of an ingestion run for reporting.
func (s *Store) StartRun(ctx context.Context, runID, docType string, total int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (run_id, doc_type, documents_total)
		VALUES (?, ?, ?)
	`, runID, docType, total)
	return err
}

// FinishRun records the end of an ingestion run.
func (s *Store) FinishRun(ctx context.Context, runID string, done, failed int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_runs
		SET finished_at = CURRENT_TIMESTAMP, documents_done = ?, documents_failed = ?
		WHERE run_id = ?
	`, done, failed, runID)
	return err
}
