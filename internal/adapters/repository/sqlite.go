package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/scoring"
	"github.com/okian/nudge/pkg/metrics"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Table names follow the ProgSnap 2 naming so the log database doubles as a
// dataset for offline analysis.
const (
	mainTable       = "MainTable"
	conditionsTable = "SubjectConditions"
	modelsTable     = "Models"
)

// columnPattern restricts dynamically added column names. Extension field
// names like "X-Score" are allowed; quoting characters are not.
var columnPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// SQLiteStore implements EventStore on a local SQLite file.
//
// The main table starts with the fixed ProgSnap 2 columns and grows
// dynamically as new event field names are encountered. Timestamps are
// stored as fixed-format strings; EventID is the only ordering key.
type SQLiteStore struct {
	db    *sql.DB
	clock func() time.Time

	// mu guards the column cache and DDL; SQLite serializes writers anyway,
	// so this only prevents redundant ALTER TABLE attempts.
	mu      sync.Mutex
	columns map[string]struct{}
}

// StoreOption applies a configuration option to the SQLiteStore.
type StoreOption func(*SQLiteStore)

// WithClock sets the clock used for server timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *SQLiteStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Open opens (creating if needed) the SQLite event store at path and
// ensures the schema exists.
func Open(path string, opts ...StoreOption) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: path is required", ErrOpen)
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	s := &SQLiteStore{
		db:      db,
		clock:   time.Now,
		columns: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close event store: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ensureSchema() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			EventID INTEGER PRIMARY KEY AUTOINCREMENT,
			EventType TEXT,
			ServerTimestamp TEXT,
			ClientTimestamp TEXT,
			ProblemID TEXT,
			SubjectID TEXT,
			CodeStateID TEXT
		)`, mainTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			SubjectID TEXT PRIMARY KEY,
			IsIntervention INTEGER NOT NULL
		)`, conditionsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ModelID INTEGER PRIMARY KEY AUTOINCREMENT,
			ProblemID TEXT UNIQUE,
			Model BLOB,
			TrainingCount INTEGER
		)`, modelsTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %w", ErrOpen, err)
		}
	}
	return s.loadColumns()
}

// loadColumns primes the column cache from the live schema.
func (s *SQLiteStore) loadColumns() error {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, mainTable))
	if err != nil {
		return fmt.Errorf("%w: read schema: %w", ErrOpen, err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("%w: read schema: %w", ErrOpen, err)
		}
		s.columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: read schema: %w", ErrOpen, err)
	}
	return nil
}

// ensureColumns adds main-table columns for any unseen field names.
func (s *SQLiteStore) ensureColumns(ctx context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		if _, ok := s.columns[name]; ok {
			continue
		}
		if !columnPattern.MatchString(name) {
			return fmt.Errorf("%w: %q", ErrInvalidField, name)
		}
		ddl := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN "%s"`, mainTable, name)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			// Another connection may have added it concurrently.
			if !strings.Contains(err.Error(), "duplicate column name") {
				return fmt.Errorf("add column %q: %w", name, err)
			}
		}
		s.columns[name] = struct{}{}
	}
	return nil
}

func (s *SQLiteStore) hasColumn(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.columns[name]
	return ok
}

// Append persists one event row. The write is a single INSERT and therefore
// atomic; readers never observe a partial record.
func (s *SQLiteStore) Append(ctx context.Context, eventType string, fields model.Fields) (int64, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreAppendLatency(float64(time.Since(start).Milliseconds()))
	}()

	row := fields.Clone()
	// EventID is assigned by the store; never trust a client-supplied one.
	delete(row, model.FieldEventID)
	row[model.FieldEventType] = eventType
	row[model.FieldServerTimestamp] = s.clock().Format(model.TimestampFormat)
	if ts, ok := row.String(model.FieldClientTimestamp); ok {
		if normalized, ok := model.NormalizeClientTimestamp(ts); ok {
			row[model.FieldClientTimestamp] = normalized
		} else {
			// Malformed client clock readings are dropped, not fatal.
			delete(row, model.FieldClientTimestamp)
		}
	}

	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := s.ensureColumns(ctx, names); err != nil {
		return 0, err
	}

	quoted := make([]string, len(names))
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		quoted[i] = `"` + name + `"`
		placeholders[i] = "?"
		args[i] = toColumnValue(row[name])
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		mainTable, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		metrics.RecordStoreError("append")
		return 0, fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append event id: %w", err)
	}
	return id, nil
}

// toColumnValue flattens composite field values to JSON text so arbitrary
// client payloads remain loggable.
func toColumnValue(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int64, float64, []byte:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

// QueryLatest returns the most recent matching event by EventID, or nil.
func (s *SQLiteStore) QueryLatest(ctx context.Context, problemID, subjectID string, eventTypes []string) (*LoggedEvent, error) {
	if len(eventTypes) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(eventTypes)), ", ")
	// Ordered by EventID: timestamps are stored as strings and may collide.
	query := fmt.Sprintf(`SELECT EventID, EventType, ProblemID, SubjectID, ServerTimestamp
		FROM %s
		WHERE ProblemID = ? AND SubjectID = ? AND EventType IN (%s)
		ORDER BY EventID DESC LIMIT 1`, mainTable, placeholders)
	args := make([]any, 0, len(eventTypes)+2)
	args = append(args, problemID, subjectID)
	for _, t := range eventTypes {
		args = append(args, t)
	}

	var ev LoggedEvent
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&ev.EventID, &ev.EventType, &ev.ProblemID, &ev.SubjectID, &ev.ServerTimestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.RecordStoreError("query_latest")
		return nil, fmt.Errorf("query latest event: %w", err)
	}
	return &ev, nil
}

// GetOrSetSubjectCondition implements first-writer-wins via the primary-key
// constraint: the insert is a no-op when a row already exists, and the
// follow-up read returns whatever value won.
func (s *SQLiteStore) GetOrSetSubjectCondition(ctx context.Context, subjectID string, defaultFn func() bool) (bool, error) {
	existing, found, err := s.readSubjectCondition(ctx, subjectID)
	if err != nil {
		return false, err
	}
	if found {
		return existing, nil
	}

	value := defaultFn()
	insert := fmt.Sprintf(`INSERT INTO %s (SubjectID, IsIntervention) VALUES (?, ?)
		ON CONFLICT(SubjectID) DO NOTHING`, conditionsTable)
	if _, err := s.db.ExecContext(ctx, insert, subjectID, boolToInt(value)); err != nil {
		metrics.RecordStoreError("set_condition")
		return false, fmt.Errorf("set subject condition: %w", err)
	}

	// Re-read rather than returning value: a concurrent racer may have won
	// the insert, and all callers must observe the durable choice.
	final, found, err := s.readSubjectCondition(ctx, subjectID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("subject condition vanished for %q", subjectID)
	}
	metrics.RecordConditionAssigned(final)
	return final, nil
}

func (s *SQLiteStore) readSubjectCondition(ctx context.Context, subjectID string) (bool, bool, error) {
	query := fmt.Sprintf(`SELECT IsIntervention FROM %s WHERE SubjectID = ?`, conditionsTable)
	var value int
	err := s.db.QueryRowContext(ctx, query, subjectID).Scan(&value)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		metrics.RecordStoreError("get_condition")
		return false, false, fmt.Errorf("get subject condition: %w", err)
	}
	return value != 0, true, nil
}

// DistinctCodeStateCount counts distinct code states across run and submit
// events for a problem.
func (s *SQLiteStore) DistinctCodeStateCount(ctx context.Context, problemID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT CodeStateID) FROM %s
		WHERE ProblemID = ? AND EventType IN (?, ?)`, mainTable)
	var count int
	err := s.db.QueryRowContext(ctx, query, problemID, model.EventSubmit, model.EventRunProgram).Scan(&count)
	if err != nil {
		metrics.RecordStoreError("distinct_count")
		return 0, fmt.Errorf("count distinct code states: %w", err)
	}
	return count, nil
}

// TrainingExamples returns graded submissions for a problem: run/submit
// rows carrying both code and a score. Correct means score >= 1.
func (s *SQLiteStore) TrainingExamples(ctx context.Context, problemID string) ([]scoring.Example, error) {
	// Until a graded submission has been logged, the Score column (and
	// possibly CodeState) does not exist yet.
	if !s.hasColumn(model.FieldCodeState) || !s.hasColumn(model.FieldScore) {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT CodeState, Score FROM %s
		WHERE ProblemID = ? AND EventType IN (?, ?)
		AND CodeState IS NOT NULL AND Score IS NOT NULL
		ORDER BY EventID`, mainTable)
	rows, err := s.db.QueryContext(ctx, query, problemID, model.EventSubmit, model.EventRunProgram)
	if err != nil {
		metrics.RecordStoreError("training_examples")
		return nil, fmt.Errorf("query training examples: %w", err)
	}
	defer rows.Close()

	var examples []scoring.Example
	for rows.Next() {
		var code string
		var rawScore any
		if err := rows.Scan(&code, &rawScore); err != nil {
			return nil, fmt.Errorf("scan training example: %w", err)
		}
		score, ok := toFloat(rawScore)
		if !ok {
			continue
		}
		examples = append(examples, scoring.Example{Code: code, Correct: score >= 1})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training examples: %w", err)
	}
	return examples, nil
}

// toFloat coerces a dynamically-typed SQLite value to a float64.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ModelRecord returns the stored model for a problem, or nil when absent.
func (s *SQLiteStore) ModelRecord(ctx context.Context, problemID string) (*ModelRecord, error) {
	query := fmt.Sprintf(`SELECT Model, TrainingCount FROM %s WHERE ProblemID = ?`, modelsTable)
	rec := ModelRecord{ProblemID: problemID}
	err := s.db.QueryRowContext(ctx, query, problemID).Scan(&rec.Model, &rec.TrainingCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		metrics.RecordStoreError("get_model")
		return nil, fmt.Errorf("get model record: %w", err)
	}
	return &rec, nil
}

// SetModelRecord overwrites the model blob and training count in a single
// upsert, so readers never observe a half-written record.
func (s *SQLiteStore) SetModelRecord(ctx context.Context, problemID string, blob []byte, trainingCount int) error {
	query := fmt.Sprintf(`INSERT INTO %s (ProblemID, Model, TrainingCount) VALUES (?, ?, ?)
		ON CONFLICT(ProblemID) DO UPDATE SET Model = excluded.Model, TrainingCount = excluded.TrainingCount`, modelsTable)
	if _, err := s.db.ExecContext(ctx, query, problemID, blob, trainingCount); err != nil {
		metrics.RecordStoreError("set_model")
		return fmt.Errorf("set model record: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EventCount returns the total number of logged events.
func (s *SQLiteStore) EventCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, mainTable)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}
