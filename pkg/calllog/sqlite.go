package calllog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// schemaVersion is the current call-log schema version.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS calls (
    id TEXT PRIMARY KEY,
    call_id TEXT NOT NULL,
    endpoint_id TEXT NOT NULL,
    route TEXT NOT NULL,
    method TEXT NOT NULL,
    target_url TEXT,
    flavor TEXT,
    streaming BOOLEAN NOT NULL,

    outcome TEXT NOT NULL,
    status_code INTEGER,
    error_type TEXT,
    error TEXT,
    trace_id TEXT,

    model TEXT,
    prompt_tokens INTEGER,
    completion_tokens INTEGER,
    total_tokens INTEGER,
    cost REAL,

    user_id TEXT,
    team_id TEXT,
    api_key_hash TEXT,
    metadata TEXT,

    request_body TEXT,
    response_body TEXT,
    truncated BOOLEAN NOT NULL,

    start_time_ms INTEGER NOT NULL,
    end_time_ms INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calls_start_time ON calls(start_time_ms);
CREATE INDEX IF NOT EXISTS idx_calls_endpoint ON calls(endpoint_id);
CREATE INDEX IF NOT EXISTS idx_calls_call_id ON calls(call_id);
`

const insertCall = `
INSERT INTO calls (
    id, call_id, endpoint_id, route, method, target_url, flavor, streaming,
    outcome, status_code, error_type, error, trace_id,
    model, prompt_tokens, completion_tokens, total_tokens, cost,
    user_id, team_id, api_key_hash, metadata,
    request_body, response_body, truncated,
    start_time_ms, end_time_ms, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectCalls = `
SELECT
    id, call_id, endpoint_id, route, method, target_url, flavor, streaming,
    outcome, status_code, error_type, error, trace_id,
    model, prompt_tokens, completion_tokens, total_tokens, cost,
    user_id, team_id, api_key_hash, metadata,
    request_body, response_body, truncated,
    start_time_ms, end_time_ms, duration_ms
FROM calls`

// Query filters stored records. Zero fields do not filter.
type Query struct {
	EndpointID string
	CallID     string
	Outcome    string
	Since      time.Time
	Until      time.Time

	// Limit caps the number of records returned, newest first. Zero means
	// DefaultQueryLimit.
	Limit int
}

// DefaultQueryLimit bounds queries that set no limit.
const DefaultQueryLimit = 100

// SQLiteStorage stores records in a SQLite database.
type SQLiteStorage struct {
	db     *sql.DB
	insert *sql.Stmt
	logger *slog.Logger
}

// OpenSQLite opens or creates the call-log database at path.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, newStorageError("open", errors.New("path is required"))
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, newStorageError("open", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, newStorageError("open", err)
	}
	// One writer; WAL lets readers proceed alongside it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, newStorageError("create_schema", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now')) ON CONFLICT(version) DO NOTHING`, schemaVersion); err != nil {
		db.Close()
		return nil, newStorageError("insert_schema_version", err)
	}
	var version int
	if err := db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`).Scan(&version); err != nil {
		db.Close()
		return nil, newStorageError("get_schema_version", err)
	}
	if version != schemaVersion {
		db.Close()
		return nil, newStorageError("schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", schemaVersion, version))
	}

	insert, err := db.Prepare(insertCall)
	if err != nil {
		db.Close()
		return nil, newStorageError("prepare", err)
	}

	s := &SQLiteStorage{
		db:     db,
		insert: insert,
		logger: slog.Default().With("component", "calllog.sqlite"),
	}
	s.logger.Info("call log storage opened", "path", path)
	return s, nil
}

// Store writes r.
func (s *SQLiteStorage) Store(ctx context.Context, r *Record) error {
	var metadata sql.NullString
	if len(r.Metadata) > 0 {
		data, err := json.Marshal(r.Metadata)
		if err != nil {
			return newStorageError("encode_metadata", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}
	var cost sql.NullFloat64
	if r.Cost != nil {
		cost = sql.NullFloat64{Float64: *r.Cost, Valid: true}
	}

	_, err := s.insert.ExecContext(ctx,
		r.ID, r.CallID, r.EndpointID, r.Route, r.Method, r.TargetURL, r.Flavor, r.Streaming,
		r.Outcome, r.StatusCode, r.ErrorType, r.Error, r.TraceID,
		r.Model, r.PromptTokens, r.CompletionTokens, r.TotalTokens, cost,
		r.UserID, r.TeamID, r.APIKeyHash, metadata,
		r.RequestBody, r.ResponseBody, r.Truncated,
		r.StartTime.UnixMilli(), r.EndTime.UnixMilli(), r.DurationMS,
	)
	if err != nil {
		return newStorageError("insert", err)
	}
	return nil
}

// Query returns matching records, newest first.
func (s *SQLiteStorage) Query(ctx context.Context, q Query) ([]*Record, error) {
	var (
		where []string
		args  []any
	)
	if q.EndpointID != "" {
		where = append(where, "endpoint_id = ?")
		args = append(args, q.EndpointID)
	}
	if q.CallID != "" {
		where = append(where, "call_id = ?")
		args = append(args, q.CallID)
	}
	if q.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, q.Outcome)
	}
	if !q.Since.IsZero() {
		where = append(where, "start_time_ms >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		where = append(where, "start_time_ms < ?")
		args = append(args, q.Until.UnixMilli())
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	stmt := selectCalls
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY start_time_ms DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, newStorageError("query", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, newStorageError("scan", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("query", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		r                                          Record
		targetURL, flavor, errType, errText, trace sql.NullString
		model, userID, teamID, keyHash, metadata   sql.NullString
		reqBody, respBody                          sql.NullString
		status, prompt, completion, total          sql.NullInt64
		cost                                       sql.NullFloat64
		startMS, endMS                             int64
	)
	err := rows.Scan(
		&r.ID, &r.CallID, &r.EndpointID, &r.Route, &r.Method, &targetURL, &flavor, &r.Streaming,
		&r.Outcome, &status, &errType, &errText, &trace,
		&model, &prompt, &completion, &total, &cost,
		&userID, &teamID, &keyHash, &metadata,
		&reqBody, &respBody, &r.Truncated,
		&startMS, &endMS, &r.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	r.TargetURL, r.Flavor = targetURL.String, flavor.String
	r.StatusCode = int(status.Int64)
	r.ErrorType, r.Error, r.TraceID = errType.String, errText.String, trace.String
	r.Model = model.String
	r.PromptTokens, r.CompletionTokens, r.TotalTokens = prompt.Int64, completion.Int64, total.Int64
	if cost.Valid {
		c := cost.Float64
		r.Cost = &c
	}
	r.UserID, r.TeamID, r.APIKeyHash = userID.String, teamID.String, keyHash.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", r.ID, err)
		}
	}
	r.RequestBody, r.ResponseBody = reqBody.String, respBody.String
	r.StartTime = time.UnixMilli(startMS).UTC()
	r.EndTime = time.UnixMilli(endMS).UTC()
	return &r, nil
}

// DeleteBefore removes records that started before cutoff and returns how
// many were deleted.
func (s *SQLiteStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calls WHERE start_time_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, newStorageError("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, newStorageError("delete", err)
	}
	return n, nil
}

// Count returns the number of stored records.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`).Scan(&n); err != nil {
		return 0, newStorageError("count", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return newStorageError("ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	_ = s.insert.Close()
	if err := s.db.Close(); err != nil {
		return newStorageError("close", err)
	}
	return nil
}

// StorageError describes a failed call-log storage operation.
type StorageError struct {
	Operation string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("call log storage %s: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newStorageError(operation string, err error) *StorageError {
	return &StorageError{Operation: operation, Err: err}
}
