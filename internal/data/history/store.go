package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"procmap/internal/core/errors"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Store persists one row per completed scan so trends survive restarts.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts during watch-mode churn.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveScan records one scan. A missing scan id or timestamp is filled
// in; re-saving the same scan id upserts the row.
func (s *Store) SaveScan(projectKey string, record ScanRecord) (ScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projectKey = normalizeProjectKey(projectKey)

	if record.ScanID == "" {
		record.ScanID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	if record.SchemaVersion == 0 {
		record.SchemaVersion = SchemaVersion
	}
	if record.SchemaVersion != SchemaVersion {
		return ScanRecord{}, errors.New(errors.CodeConflict,
			fmt.Sprintf("unsupported scan schema version %d", record.SchemaVersion))
	}

	query := `
INSERT INTO scans (
  project_key, scan_id, schema_version, ts_utc, file_count, procedure_count, table_count,
  placeholder_count, call_edge_count, access_edge_count, cycle_count,
  max_dependency_level, avg_complexity
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(project_key, scan_id) DO UPDATE SET
  schema_version=excluded.schema_version,
  ts_utc=excluded.ts_utc,
  file_count=excluded.file_count,
  procedure_count=excluded.procedure_count,
  table_count=excluded.table_count,
  placeholder_count=excluded.placeholder_count,
  call_edge_count=excluded.call_edge_count,
  access_edge_count=excluded.access_edge_count,
  cycle_count=excluded.cycle_count,
  max_dependency_level=excluded.max_dependency_level,
  avg_complexity=excluded.avg_complexity
`
	err := s.withRetry("save scan", func() error {
		_, err := s.db.Exec(
			query,
			projectKey,
			record.ScanID,
			record.SchemaVersion,
			record.Timestamp.UTC().Format(time.RFC3339Nano),
			record.FileCount,
			record.ProcedureCount,
			record.TableCount,
			record.PlaceholderCount,
			record.CallEdgeCount,
			record.AccessEdgeCount,
			record.CycleCount,
			record.MaxDependencyLevel,
			record.AvgComplexity,
		)
		return err
	})
	if err != nil {
		return ScanRecord{}, err
	}
	return record, nil
}

// LoadScans returns scans for projectKey in timestamp order, optionally
// restricted to those at or after since.
func (s *Store) LoadScans(projectKey string, since time.Time) ([]ScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projectKey = normalizeProjectKey(projectKey)

	base := `
SELECT
  scan_id, schema_version, ts_utc, file_count, procedure_count, table_count,
  placeholder_count, call_edge_count, access_edge_count, cycle_count,
  max_dependency_level, avg_complexity
FROM scans
 WHERE project_key = ?`
	args := make([]any, 0, 2)
	args = append(args, projectKey)
	if !since.IsZero() {
		base += " AND ts_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	base += " ORDER BY ts_utc ASC, scan_id ASC"

	var rows *sql.Rows
	err := s.withRetry("load scans", func() error {
		var qErr error
		rows, qErr = s.db.Query(base, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]ScanRecord, 0)
	for rows.Next() {
		var (
			tsRaw  string
			record ScanRecord
		)
		if err := rows.Scan(
			&record.ScanID,
			&record.SchemaVersion,
			&tsRaw,
			&record.FileCount,
			&record.ProcedureCount,
			&record.TableCount,
			&record.PlaceholderCount,
			&record.CallEdgeCount,
			&record.AccessEdgeCount,
			&record.CycleCount,
			&record.MaxDependencyLevel,
			&record.AvgComplexity,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse scan timestamp %q: %w", tsRaw, err)
		}
		record.Timestamp = ts.UTC()

		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan rows: %w", err)
	}

	return records, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func normalizeProjectKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "default"
	}
	return key
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}
