// internal/database/database.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the schema idempotently. Referential actions carry the
// catalog's lifecycle rules: deleting a book takes its copies with it,
// deleting an author or a member nulls the references to them, and a
// language cannot be deleted while a book references it.
func Migrate(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS genres (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(200) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS languages (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS authors (
			id BIGSERIAL PRIMARY KEY,
			first_name VARCHAR(100) NOT NULL,
			last_name VARCHAR(100) NOT NULL,
			date_of_birth DATE,
			date_of_death DATE
		)`,
		`CREATE TABLE IF NOT EXISTS members (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			member_id UUID PRIMARY KEY REFERENCES members(id) ON DELETE CASCADE,
			password_hash TEXT NOT NULL,
			salt TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS member_capabilities (
			member_id UUID NOT NULL REFERENCES members(id) ON DELETE CASCADE,
			capability TEXT NOT NULL,
			PRIMARY KEY (member_id, capability)
		)`,
		`CREATE TABLE IF NOT EXISTS books (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(200) NOT NULL,
			author_id BIGINT REFERENCES authors(id) ON DELETE SET NULL,
			language_id BIGINT NOT NULL REFERENCES languages(id) ON DELETE RESTRICT,
			summary VARCHAR(1000) NOT NULL DEFAULT '',
			isbn VARCHAR(13) NOT NULL UNIQUE,
			publication_date DATE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS book_genres (
			book_id BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			genre_id BIGINT NOT NULL REFERENCES genres(id) ON DELETE CASCADE,
			PRIMARY KEY (book_id, genre_id)
		)`,
		`CREATE TABLE IF NOT EXISTS book_instances (
			id UUID PRIMARY KEY,
			book_id BIGINT REFERENCES books(id) ON DELETE CASCADE,
			imprint VARCHAR(200) NOT NULL,
			due_back DATE,
			borrower_id UUID REFERENCES members(id) ON DELETE SET NULL,
			status CHAR(1) NOT NULL DEFAULT 'm'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_book_instances_due_back
			ON book_instances (due_back)`,
		`CREATE INDEX IF NOT EXISTS idx_book_instances_borrower
			ON book_instances (borrower_id, status)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
