package trace

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrTraceNotFound is returned when a named trace is not in the store.
var ErrTraceNotFound = errors.New("trace not found")

const schema = `
CREATE TABLE IF NOT EXISTS traces (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS accesses (
	trace_id INTEGER NOT NULL REFERENCES traces(id),
	seq      INTEGER NOT NULL,
	addr     INTEGER NOT NULL,
	pc       INTEGER NOT NULL,
	has_pc   INTEGER NOT NULL,
	is_write INTEGER NOT NULL,
	PRIMARY KEY (trace_id, seq)
);`

// TraceInfo describes a stored trace.
type TraceInfo struct {
	Name     string
	Accesses int
}

// Store keeps named access traces in a SQLite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the SQLite trace database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create trace schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTrace stores accesses under name, replacing any trace with that name.
func (s *Store) SaveTrace(name string, accesses []Access) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM accesses WHERE trace_id IN (SELECT id FROM traces WHERE name = ?)`, name); err != nil {
		return fmt.Errorf("failed to delete old trace: %w", err)
	}
	if _, err = tx.Exec(`DELETE FROM traces WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete old trace: %w", err)
	}

	res, err := tx.Exec(`INSERT INTO traces (name) VALUES (?)`, name)
	if err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}
	traceID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO accesses (trace_id, seq, addr, pc, has_pc, is_write) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	// SQLite integers are signed; addresses are stored bit-for-bit.
	for i, a := range accesses {
		if _, err = stmt.Exec(traceID, i, int64(a.Addr), int64(a.PC), a.HasPC, a.IsWrite); err != nil {
			return fmt.Errorf("failed to insert access %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace: %w", err)
	}
	return nil
}

// LoadTrace returns the accesses stored under name in the order they were saved.
func (s *Store) LoadTrace(name string) ([]Access, error) {
	var traceID int64
	err := s.db.QueryRow(`SELECT id FROM traces WHERE name = ?`, name).Scan(&traceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up trace: %w", err)
	}

	rows, err := s.db.Query(`SELECT addr, pc, has_pc, is_write FROM accesses WHERE trace_id = ? ORDER BY seq`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accesses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accesses []Access
	for rows.Next() {
		var addr, pc int64
		var a Access
		if err := rows.Scan(&addr, &pc, &a.HasPC, &a.IsWrite); err != nil {
			return nil, fmt.Errorf("failed to scan access: %w", err)
		}
		a.Addr = uint64(addr)
		a.PC = uint64(pc)
		accesses = append(accesses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accesses: %w", err)
	}

	return accesses, nil
}

// ListTraces returns every stored trace ordered by name.
func (s *Store) ListTraces() ([]TraceInfo, error) {
	rows, err := s.db.Query(`
		SELECT t.name, COUNT(a.seq)
		FROM traces t LEFT JOIN accesses a ON a.trace_id = t.id
		GROUP BY t.id
		ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []TraceInfo
	for rows.Next() {
		var info TraceInfo
		if err := rows.Scan(&info.Name, &info.Accesses); err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}

	return infos, nil
}
