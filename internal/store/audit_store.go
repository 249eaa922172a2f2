// Package store persists terminal workflow outcomes to SQLite so that every
// accumulated rejection reason and link-check result survives the run for
// auditing.
//
// Storage location: .answervet/audit.db
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"answervet/internal/linkcheck"
	"answervet/internal/logging"
	"answervet/internal/workflow"
)

// AuditStore persists workflow run outcomes.
type AuditStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// RunRecord is one persisted workflow outcome.
type RunRecord struct {
	ID          int64
	JobID       string // empty for single-question runs
	Row         int
	Question    string
	Status      string
	Attempts    int
	Answer      string
	Links       []string
	Reasons     []string
	LinkResults []linkcheck.Result
	Error       string
	CreatedAt   time.Time
}

// NewAuditStore opens (or creates) the audit database.
func NewAuditStore(dbPath string) (*AuditStore, error) {
	logging.StoreDebug("Initializing AuditStore at path: %s", dbPath)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &AuditStore{db: db, dbPath: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("AuditStore initialized at %s", dbPath)
	return store, nil
}

// initialize creates the database schema.
func (s *AuditStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflow_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT,
		row INTEGER NOT NULL DEFAULT 0,
		question TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		answer TEXT,
		links TEXT,
		reasons TEXT,
		link_results TEXT,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_workflow_runs_job ON workflow_runs(job_id);
	CREATE INDEX IF NOT EXISTS idx_workflow_runs_created ON workflow_runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordResult persists a terminal workflow result.
func (s *AuditStore) RecordResult(jobID string, row int, result *workflow.Result) error {
	rec := RunRecord{
		JobID:       jobID,
		Row:         row,
		Question:    result.Question.Text,
		Status:      string(result.Status),
		Attempts:    result.Attempts,
		Reasons:     result.Reasons,
		LinkResults: result.LinkResults,
	}
	if result.Answer != nil {
		rec.Answer = result.Answer.Body
	}
	rec.Links = result.Documentation
	return s.insert(rec)
}

// RecordError persists a row that ended in a fatal infrastructure error.
func (s *AuditStore) RecordError(jobID string, row int, question string, runErr error) error {
	return s.insert(RunRecord{
		JobID:    jobID,
		Row:      row,
		Question: question,
		Status:   "error",
		Error:    runErr.Error(),
	})
}

func (s *AuditStore) insert(rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	links, _ := json.Marshal(rec.Links)
	reasons, _ := json.Marshal(rec.Reasons)
	linkResults, _ := json.Marshal(rec.LinkResults)

	_, err := s.db.Exec(`
		INSERT INTO workflow_runs
		(job_id, row, question, status, attempts, answer, links, reasons, link_results, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.Row, rec.Question, rec.Status, rec.Attempts,
		rec.Answer, string(links), string(reasons), string(linkResults), rec.Error,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to store run for row %d: %v", rec.Row, err)
		return err
	}

	logging.StoreDebug("Stored run: row=%d status=%s attempts=%d", rec.Row, rec.Status, rec.Attempts)
	return nil
}

// GetByJob returns all recorded runs for a batch job, ordered by row.
func (s *AuditStore) GetByJob(jobID string) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, job_id, row, question, status, attempts, answer, links, reasons, link_results, error, created_at
		FROM workflow_runs WHERE job_id = ? ORDER BY row`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

// GetRecent returns the most recent runs, newest first.
func (s *AuditStore) GetRecent(limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, job_id, row, question, status, attempts, answer, links, reasons, link_results, error, created_at
		FROM workflow_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

func (s *AuditStore) scanRecords(rows *sql.Rows) ([]RunRecord, error) {
	var records []RunRecord
	for rows.Next() {
		var (
			rec         RunRecord
			links       string
			reasons     string
			linkResults string
		)
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.Row, &rec.Question, &rec.Status,
			&rec.Attempts, &rec.Answer, &links, &reasons, &linkResults, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(links), &rec.Links)
		_ = json.Unmarshal([]byte(reasons), &rec.Reasons)
		_ = json.Unmarshal([]byte(linkResults), &rec.LinkResults)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *AuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
