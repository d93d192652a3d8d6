package fichiers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// FileEntity is the indexed record of a stored file.
type FileEntity struct {
	ID         int64
	Filename   string
	Size       int64
	FileType   string
	FilePath   string
	UploadedAt time.Time
}

// Index persists FileEntity records in SQLite.
type Index struct {
	conn *sql.DB
}

// OpenIndex opens (or creates) the SQLite database at dbPath.
func OpenIndex(dbPath string) (*Index, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer
	conn.SetMaxOpenConns(1)

	idx := &Index{conn: conn}
	if err := idx.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return idx, nil
}

func (idx *Index) Close() error {
	return idx.conn.Close()
}

func (idx *Index) migrate() error {
	_, err := idx.conn.Exec(`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		size INTEGER NOT NULL,
		file_type TEXT,
		file_path TEXT NOT NULL,
		uploaded_at DATETIME NOT NULL
	)`)
	return err
}

// Upsert inserts e or replaces the record with the same filename.
func (idx *Index) Upsert(ctx context.Context, e FileEntity) (FileEntity, error) {
	err := idx.conn.QueryRowContext(ctx, `
		INSERT INTO files (filename, size, file_type, file_path, uploaded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			size = excluded.size,
			file_type = excluded.file_type,
			file_path = excluded.file_path,
			uploaded_at = excluded.uploaded_at
		RETURNING id`,
		e.Filename, e.Size, e.FileType, e.FilePath, e.UploadedAt.UTC(),
	).Scan(&e.ID)
	if err != nil {
		return e, fmt.Errorf("upsert %s: %w", e.Filename, err)
	}
	return e, nil
}

func (idx *Index) Get(ctx context.Context, filename string) (FileEntity, error) {
	var e FileEntity
	var fileType sql.NullString
	err := idx.conn.QueryRowContext(ctx, `
		SELECT id, filename, size, file_type, file_path, uploaded_at
		FROM files WHERE filename = ?`, filename,
	).Scan(&e.ID, &e.Filename, &e.Size, &fileType, &e.FilePath, &e.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, fmt.Errorf("get %s: %w", filename, err)
	}
	e.FileType = fileType.String
	return e, nil
}

// Delete removes the record for filename. Missing records are not an error.
func (idx *Index) Delete(ctx context.Context, filename string) error {
	if _, err := idx.conn.ExecContext(ctx, `DELETE FROM files WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("delete %s: %w", filename, err)
	}
	return nil
}

func (idx *Index) List(ctx context.Context) ([]FileEntity, error) {
	rows, err := idx.conn.QueryContext(ctx, `
		SELECT id, filename, size, file_type, file_path, uploaded_at
		FROM files ORDER BY filename`)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var out []FileEntity
	for rows.Next() {
		var e FileEntity
		var fileType sql.NullString
		if err := rows.Scan(&e.ID, &e.Filename, &e.Size, &fileType, &e.FilePath, &e.UploadedAt); err != nil {
			return nil, err
		}
		e.FileType = fileType.String
		out = append(out, e)
	}
	return out, rows.Err()
}
