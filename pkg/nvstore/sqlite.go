package nvstore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLitePage adapts the teacher's pkg/state/sqlite.go key/value pattern
// (CREATE TABLE IF NOT EXISTS ... modernc.org/sqlite) into a
// byte-addressable page store: the whole NV image lives in one row of
// one table, and ReadAt/WriteAt slice into the blob in Go. This suits
// deployments that already carry a SQLite file for other on-device
// bookkeeping and want the persistence log to live alongside it rather
// than in its own flat file.
type SQLitePage struct {
	db   *sql.DB
	size int
}

// OpenSQLitePage opens (creating if necessary) a single-row "page"
// table of exactly size bytes at path.
func OpenSQLitePage(path string, size int) (*SQLitePage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("nvstore: open sqlite page store: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS nvstore_page (
		id INTEGER PRIMARY KEY CHECK (id = 0),
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("nvstore: create page table: %w", err)
	}

	s := &SQLitePage{db: db, size: size}
	var existing []byte
	err = db.QueryRow(`SELECT data FROM nvstore_page WHERE id = 0`).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		blank := make([]byte, size)
		if _, err := db.Exec(`INSERT INTO nvstore_page (id, data) VALUES (0, ?)`, blank); err != nil {
			db.Close()
			return nil, fmt.Errorf("nvstore: seed page: %w", err)
		}
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("nvstore: read page: %w", err)
	case len(existing) != size:
		db.Close()
		return nil, fmt.Errorf("nvstore: existing page size %d does not match requested %d", len(existing), size)
	}

	return s, nil
}

func (s *SQLitePage) Size() int { return s.size }

func (s *SQLitePage) page() ([]byte, error) {
	var data []byte
	if err := s.db.QueryRow(`SELECT data FROM nvstore_page WHERE id = 0`).Scan(&data); err != nil {
		return nil, fmt.Errorf("nvstore: read page: %w", err)
	}
	return data, nil
}

func (s *SQLitePage) ReadAt(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > s.size {
		return nil, fmt.Errorf("nvstore: read [%d:%d] out of range (size %d)", off, off+n, s.size)
	}
	data, err := s.page()
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, data[off:off+n])
	return out, nil
}

func (s *SQLitePage) WriteAt(off int, chunk []byte) error {
	if off < 0 || off+len(chunk) > s.size {
		return fmt.Errorf("nvstore: write [%d:%d] out of range (size %d)", off, off+len(chunk), s.size)
	}
	data, err := s.page()
	if err != nil {
		return err
	}
	copy(data[off:], chunk)
	_, err = s.db.Exec(`UPDATE nvstore_page SET data = ? WHERE id = 0`, data)
	return err
}

// Close closes the underlying database handle.
func (s *SQLitePage) Close() error {
	return s.db.Close()
}
