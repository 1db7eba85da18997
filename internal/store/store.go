package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed persistence layer for documents, items, the
// answer ledger and the class roster.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		grade TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		class_id INTEGER,
		first_login INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (class_id) REFERENCES classes(id)
	);

	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		chapter_tag TEXT NOT NULL,
		file_path TEXT NOT NULL DEFAULT '',
		extracted_text TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER,
		owner_id INTEGER NOT NULL,
		chapter_tag TEXT NOT NULL,
		question TEXT NOT NULL,
		option_1 TEXT NOT NULL,
		option_2 TEXT NOT NULL,
		option_3 TEXT NOT NULL,
		option_4 TEXT NOT NULL,
		correct_option INTEGER NOT NULL CHECK (correct_option BETWEEN 1 AND 4),
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_owner_chapter ON items(owner_id, chapter_tag, status);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id INTEGER NOT NULL,
		item_id INTEGER NOT NULL,
		chosen INTEGER NOT NULL CHECK (chosen BETWEEN 1 AND 4),
		is_correct INTEGER NOT NULL,
		response_time INTEGER,
		created_at DATETIME NOT NULL,
		UNIQUE (student_id, item_id)
	);
	CREATE INDEX IF NOT EXISTS idx_answers_item ON answers(item_id);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		document_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		result TEXT,
		error_kind TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
