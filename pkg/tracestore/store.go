// Package tracestore persists parsed control-trace reports in SQLite and
// tracks their statistics over time.
package tracestore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dkoosis/tracekit/pkg/trace"
	"github.com/dkoosis/tracekit/pkg/tracestats"
)

var (
	// ErrNotFound is returned when a folio has no stored report.
	ErrNotFound = errors.New("folio not found")
	// ErrSchemaDrift is returned by Open when an existing database is missing
	// store tables or columns.
	ErrSchemaDrift = errors.New("store schema does not match")
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	folio TEXT NOT NULL,
	digest TEXT NOT NULL,
	ingested_at TEXT NOT NULL,
	tokens INTEGER NOT NULL,
	kernel_contacts INTEGER NOT NULL,
	hazard_adjacent INTEGER NOT NULL,
	navigation_sequences INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_folio ON reports(folio);

CREATE TABLE IF NOT EXISTS rows (
	report_id INTEGER NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	token TEXT NOT NULL,
	class TEXT NOT NULL,
	k_dist INTEGER NOT NULL,
	h_dist INTEGER NOT NULL,
	e_dist INTEGER NOT NULL,
	min_dist INTEGER NOT NULL,
	hazard_adj INTEGER NOT NULL,
	hazard_class TEXT NOT NULL DEFAULT '',
	cycle TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_rows_report ON rows(report_id);
CREATE INDEX IF NOT EXISTS idx_rows_class ON rows(class);
`

// Store is a SQLite-backed report store. It is safe for concurrent use; the
// connection pool is limited to a single connection.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the store at path. A fresh database gets the schema;
// an existing one must already match it, otherwise ErrSchemaDrift is returned
// and nothing is changed.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	s, err := open(ctx, path, "PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		s.db.Close()
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("PRAGMA journal_mode = WAL: %w", err)
	}
	return s, nil
}

// Inspect opens an existing store read-only. It applies no schema and leaves
// the journal mode alone, so CheckSchema sees the database as it is.
func Inspect(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	return open(ctx, path, "PRAGMA busy_timeout = 5000", "PRAGMA query_only = ON")
}

func open(ctx context.Context, path string, pragmas ...string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// migrate applies the schema to a database that has none of the store tables
// or whose tables already carry every expected column.
func (s *Store) migrate(ctx context.Context) error {
	actual, err := s.ActualSchema(ctx)
	if err != nil {
		return err
	}
	expected := ExpectedSchema()
	fresh := true
	for name := range expected {
		if _, ok := actual[name]; ok {
			fresh = false
			break
		}
	}
	if !fresh && SchemaLog(CompareSchemas(expected, actual, s.path)).HasErrors() {
		return fmt.Errorf("%s: %w (run tracekit db-check)", s.path, ErrSchemaDrift)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// ReportInfo is a stored report with its recomputed statistics.
type ReportInfo struct {
	ID                  int64     `json:"id"`
	Path                string    `json:"path"`
	Folio               string    `json:"folio"`
	Digest              string    `json:"digest"`
	IngestedAt          time.Time `json:"ingested_at"`
	Tokens              int       `json:"tokens"`
	KernelContacts      int       `json:"kernel_contacts"`
	HazardAdjacent      int       `json:"hazard_adjacent"`
	NavigationSequences int       `json:"navigation_sequences"`
}

// Digest returns the sha256 of the report's canonical rendering, so
// formatting-only edits do not change it.
func Digest(rep *trace.Report) (string, error) {
	h := sha256.New()
	if err := trace.Write(h, rep, rep.Declared); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Ingest stores rep and its statistics, replacing any earlier report with the
// same path. It reports whether the stored content changed.
func (s *Store) Ingest(ctx context.Context, rep *trace.Report, st tracestats.Stats) (bool, error) {
	digest, err := Digest(rep)
	if err != nil {
		return false, fmt.Errorf("digest %s: %w", rep.Path, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin ingest: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var previous string
	err = tx.QueryRowContext(ctx, `SELECT digest FROM reports WHERE path = ?`, rep.Path).Scan(&previous)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("lookup %s: %w", rep.Path, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE path = ?`, rep.Path); err != nil {
		return false, fmt.Errorf("replace %s: %w", rep.Path, err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO reports
		(path, folio, digest, ingested_at, tokens, kernel_contacts, hazard_adjacent, navigation_sequences)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.Path, rep.Folio, digest, s.now().UTC().Format(time.RFC3339Nano),
		st.Tokens, st.KernelContacts, st.HazardAdjacent, st.NavigationSequences)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", rep.Path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rows
		(report_id, position, token, class, k_dist, h_dist, e_dist, min_dist, hazard_adj, hazard_class, cycle, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return false, fmt.Errorf("prepare rows: %w", err)
	}
	defer stmt.Close()

	for _, row := range rep.Rows {
		if _, err := stmt.ExecContext(ctx, id, row.Position, row.Token, string(row.Class),
			row.KDist, row.HDist, row.EDist, row.MinDist, row.HazardAdj,
			row.HazardClass, row.Cycle.String(), row.Notes); err != nil {
			return false, fmt.Errorf("insert %s position %d: %w", rep.Path, row.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit %s: %w", rep.Path, err)
	}
	return previous != digest, nil
}

// Reports lists stored reports ordered by folio and path.
func (s *Store) Reports(ctx context.Context) ([]ReportInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, folio, digest, ingested_at,
		tokens, kernel_contacts, hazard_adjacent, navigation_sequences
		FROM reports ORDER BY folio, path`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportInfo
	for rows.Next() {
		var (
			info ReportInfo
			at   string
		)
		if err := rows.Scan(&info.ID, &info.Path, &info.Folio, &info.Digest, &at,
			&info.Tokens, &info.KernelContacts, &info.HazardAdjacent, &info.NavigationSequences); err != nil {
			return nil, err
		}
		info.IngestedAt, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("report %s: ingested_at: %w", info.Path, err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Rows returns the stored rows of folio in position order.
func (s *Store) Rows(ctx context.Context, folio string) ([]trace.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.position, r.token, r.class, r.k_dist, r.h_dist,
		r.e_dist, r.min_dist, r.hazard_adj, r.hazard_class, r.cycle, r.notes
		FROM rows r JOIN reports p ON p.id = r.report_id
		WHERE p.folio = ? ORDER BY p.path, r.position`, folio)
	if err != nil {
		return nil, fmt.Errorf("rows for %s: %w", folio, err)
	}
	defer rows.Close()

	var out []trace.Row
	for rows.Next() {
		var (
			row   trace.Row
			class string
			cycle string
		)
		if err := rows.Scan(&row.Position, &row.Token, &class, &row.KDist, &row.HDist,
			&row.EDist, &row.MinDist, &row.HazardAdj, &row.HazardClass, &cycle, &row.Notes); err != nil {
			return nil, err
		}
		row.Class = trace.Class(class)
		if row.Cycle, err = trace.ParseCycle(cycle); err != nil {
			return nil, fmt.Errorf("%s position %d: %w", folio, row.Position, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE folio = ?`, folio).Scan(&n); err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("%s: %w", folio, ErrNotFound)
		}
	}
	return out, nil
}

// ClassCount is the number of stored tokens carrying a class.
type ClassCount struct {
	Class trace.Class `json:"class"`
	Count int         `json:"count"`
}

// ClassFrequencies totals token classes across every stored folio, most
// frequent first.
func (s *Store) ClassFrequencies(ctx context.Context) ([]ClassCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT class, COUNT(*) AS n FROM rows
		GROUP BY class ORDER BY n DESC, class`)
	if err != nil {
		return nil, fmt.Errorf("class frequencies: %w", err)
	}
	defer rows.Close()

	var out []ClassCount
	for rows.Next() {
		var (
			cc    ClassCount
			class string
		)
		if err := rows.Scan(&class, &cc.Count); err != nil {
			return nil, err
		}
		cc.Class = trace.Class(class)
		out = append(out, cc)
	}
	return out, rows.Err()
}

// Snapshot captures the stored statistics of every report at time at.
func (s *Store) Snapshot(ctx context.Context, at time.Time) (Snapshot, error) {
	reports, err := s.Reports(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Timestamp: at.UTC(),
		Week:      ISOWeek(at),
		Folios:    make(map[string]FolioStats, len(reports)),
	}
	for _, r := range reports {
		snap.Folios[r.Path] = FolioStats{
			Folio:               r.Folio,
			Tokens:              r.Tokens,
			KernelContacts:      r.KernelContacts,
			HazardAdjacent:      r.HazardAdjacent,
			NavigationSequences: r.NavigationSequences,
		}
	}
	return snap, nil
}
