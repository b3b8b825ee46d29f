package jit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "modernc.org/sqlite"

	"github.com/pluslang/pluspy/ir"
)

// ---------------------------------------------------------------------------
// Store: cross-run compilation profile
// ---------------------------------------------------------------------------
//
// The store persists per-key compile records in SQLite so a restarted
// runtime knows which specializations were hot last time and can warm them
// eagerly instead of waiting for first calls. It records metadata only;
// compiled closures cannot outlive the process.

// Store is a SQLite-backed profile of compiled keys.
type Store struct {
	db   *sql.DB
	path string
}

// storeMeta is the CBOR blob kept alongside each record.
type storeMeta struct {
	LayoutGen  uint64 `cbor:"1,keyasint"`
	CompiledAt string `cbor:"2,keyasint"`
}

// OpenStore opens (creating if needed) a profile store at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("jit: opening store: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("jit: setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS jit_profile (
		fn INTEGER NOT NULL,
		spec TEXT NOT NULL,
		compiles INTEGER NOT NULL DEFAULT 0,
		last_compile_ns INTEGER NOT NULL DEFAULT 0,
		meta BLOB,
		PRIMARY KEY (fn, spec)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("jit: creating profile table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// RecordCompile upserts a compile record for a key.
func (s *Store) RecordCompile(key Key, d time.Duration, layoutGen uint64) error {
	meta, err := cbor.Marshal(storeMeta{
		LayoutGen:  layoutGen,
		CompiledAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("jit: encoding store meta: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO jit_profile (fn, spec, compiles, last_compile_ns, meta)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (fn, spec) DO UPDATE SET
			compiles = compiles + 1,
			last_compile_ns = excluded.last_compile_ns,
			meta = excluded.meta`,
		int64(key.Fn), key.Spec, d.Nanoseconds(), meta)
	if err != nil {
		return fmt.Errorf("jit: recording compile: %w", err)
	}
	return nil
}

// HotKeys returns up to limit keys ordered by compile count, hottest
// first.
func (s *Store) HotKeys(limit int) ([]Key, error) {
	rows, err := s.db.Query(
		`SELECT fn, spec FROM jit_profile ORDER BY compiles DESC, fn ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("jit: querying hot keys: %w", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var fn int64
		var spec string
		if err := rows.Scan(&fn, &spec); err != nil {
			return nil, fmt.Errorf("jit: scanning hot key: %w", err)
		}
		keys = append(keys, Key{Fn: ir.FuncID(fn), Spec: spec})
	}
	return keys, rows.Err()
}

// Compiles returns the recorded compile count for a key; zero if absent.
func (s *Store) Compiles(key Key) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		`SELECT compiles FROM jit_profile WHERE fn = ? AND spec = ?`,
		int64(key.Fn), key.Spec).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("jit: reading compile count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
