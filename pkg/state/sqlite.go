package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS installed_bundles (
	scope        TEXT NOT NULL,
	bundle_id    TEXT NOT NULL,
	version      TEXT NOT NULL DEFAULT '',
	source_id    TEXT NOT NULL DEFAULT '',
	source_type  TEXT NOT NULL DEFAULT '',
	installed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	commit_mode  TEXT NOT NULL DEFAULT '',
	install_path TEXT NOT NULL DEFAULT '',
	files        TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (scope, bundle_id)
);

CREATE INDEX IF NOT EXISTS idx_installed_bundle_id ON installed_bundles(bundle_id);
`

// SQLiteDB holds the records of every scope in one table.
type SQLiteDB struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database file and applies the schema.
func OpenSQLite(path string) (*SQLiteDB, error) {
	if err := fsutil.EnsureFileDir(path); err != nil {
		return nil, fmt.Errorf("state: create dir: %w", err)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("state: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("state: apply schema: %w", err)
	}
	return &SQLiteDB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *SQLiteDB) Close() error {
	return db.conn.Close()
}

// ForScope returns a Store view restricted to scope.
func (db *SQLiteDB) ForScope(scope model.Scope) *SQLiteStore {
	return &SQLiteStore{db: db, scope: scope}
}

// SQLiteStore is the Store of one scope inside a SQLiteDB.
type SQLiteStore struct {
	db    *SQLiteDB
	scope model.Scope
}

const selectColumns = `bundle_id, version, source_id, source_type, installed_at, commit_mode, install_path, files`

// Get implements Store.
func (s *SQLiteStore) Get(id string) (*model.InstalledBundle, error) {
	row := s.db.conn.QueryRow(
		`SELECT `+selectColumns+` FROM installed_bundles WHERE scope = ? AND bundle_id = ?`,
		string(s.scope), id,
	)
	rec, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError(pkgerrors.KindBundle, id)
	}
	if err != nil {
		return nil, fmt.Errorf("state: get %s: %w", id, err)
	}
	return rec, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(rec model.InstalledBundle) error {
	if rec.BundleID == "" {
		return pkgerrors.NewConfigError("bundleId", "", "must not be empty")
	}
	if rec.InstalledAt.IsZero() {
		rec.InstalledAt = time.Now().UTC()
	}
	files := rec.Files
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("state: marshal files: %w", err)
	}

	_, err = s.db.conn.Exec(`
		INSERT INTO installed_bundles (scope, bundle_id, version, source_id, source_type, installed_at, commit_mode, install_path, files)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, bundle_id) DO UPDATE SET
			version = excluded.version,
			source_id = excluded.source_id,
			source_type = excluded.source_type,
			installed_at = excluded.installed_at,
			commit_mode = excluded.commit_mode,
			install_path = excluded.install_path,
			files = excluded.files`,
		string(s.scope), rec.BundleID, rec.Version, rec.SourceID, string(rec.SourceType),
		rec.InstalledAt.UTC(), string(rec.CommitMode), rec.InstallPath, string(filesJSON),
	)
	if err != nil {
		return fmt.Errorf("state: put %s: %w", rec.BundleID, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(id string) error {
	if _, err := s.db.conn.Exec(`DELETE FROM installed_bundles WHERE scope = ? AND bundle_id = ?`, string(s.scope), id); err != nil {
		return fmt.Errorf("state: delete %s: %w", id, err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List() ([]model.InstalledBundle, error) {
	rows, err := s.db.conn.Query(
		`SELECT `+selectColumns+` FROM installed_bundles WHERE scope = ? ORDER BY bundle_id`,
		string(s.scope),
	)
	if err != nil {
		return nil, fmt.Errorf("state: list: %w", err)
	}
	defer rows.Close()

	out := []model.InstalledBundle{}
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("state: scan: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scan(row scanner) (*model.InstalledBundle, error) {
	var (
		rec                              model.InstalledBundle
		sourceType, commitMode, filesRaw string
	)
	if err := row.Scan(&rec.BundleID, &rec.Version, &rec.SourceID, &sourceType, &rec.InstalledAt, &commitMode, &rec.InstallPath, &filesRaw); err != nil {
		return nil, err
	}
	rec.SourceType = model.SourceType(sourceType)
	rec.CommitMode = model.CommitMode(commitMode)
	rec.Scope = s.scope
	if err := json.Unmarshal([]byte(filesRaw), &rec.Files); err != nil {
		return nil, fmt.Errorf("decode files of %s: %w", rec.BundleID, err)
	}
	if len(rec.Files) == 0 {
		rec.Files = nil
	}
	return &rec, nil
}
