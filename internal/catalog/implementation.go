// internal/catalog/implementation.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"locallibrary/internal/web"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Page sizes of the catalog list views.
const (
	booksPageSize   = 2
	authorsPageSize = 4
)

// Postgres error codes mapped onto catalog sentinel errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// service implements the Service interface over Postgres.
type service struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewService creates a new catalog service instance.
func NewService(db *sql.DB) Service {
	return &service{
		db:     db,
		tracer: otel.Tracer("locallibrary/catalog"),
	}
}

// Summary computes the index page counts in one round trip.
func (s *service) Summary(ctx context.Context) (*LibrarySummary, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.summary")
	defer span.End()

	query := `
		SELECT
			(SELECT COUNT(*) FROM books),
			(SELECT COUNT(*) FROM book_instances),
			(SELECT COUNT(*) FROM book_instances WHERE status = 'a'),
			(SELECT COUNT(*) FROM authors),
			(SELECT COUNT(*) FROM books WHERE title ILIKE '%' || $1 || '%'),
			(SELECT COUNT(DISTINCT bg.book_id)
			   FROM book_genres bg
			   JOIN genres g ON g.id = bg.genre_id
			  WHERE g.name ILIKE '%' || $2 || '%')
	`
	sum := &LibrarySummary{}
	err := s.db.QueryRowContext(ctx, query, "the", "fiction").Scan(
		&sum.NumBooks,
		&sum.NumInstances,
		&sum.NumInstancesAvailable,
		&sum.NumAuthors,
		&sum.TitlesContainingThe,
		&sum.FictionBooks,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute library summary: %w", err)
	}
	span.SetAttributes(attribute.Int("summary.books", sum.NumBooks))
	return sum, nil
}

// Books lists the catalog page by page, ordered by title.
func (s *service) Books(ctx context.Context, page int) ([]*Book, web.PageInfo, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&total); err != nil {
		return nil, web.PageInfo{}, fmt.Errorf("failed to count books: %w", err)
	}

	info, err := web.Paginate(web.PageRequest{Number: page, Size: booksPageSize}, total)
	if err != nil {
		return nil, web.PageInfo{}, err
	}

	query := `
		SELECT b.id, b.title, b.author_id, b.language_id, COALESCE(l.name, ''),
		       b.summary, b.isbn, b.publication_date
		FROM books b
		LEFT JOIN languages l ON l.id = b.language_id
		ORDER BY b.title, b.id
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, info.Size, info.Offset())
	if err != nil {
		return nil, web.PageInfo{}, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, web.PageInfo{}, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, web.PageInfo{}, err
	}

	for _, book := range books {
		if err := s.attachGenres(ctx, book); err != nil {
			return nil, web.PageInfo{}, err
		}
	}
	return books, info, nil
}

// BookByID retrieves one book with its author, language and genres.
func (s *service) BookByID(ctx context.Context, id int64) (*Book, error) {
	query := `
		SELECT b.id, b.title, b.author_id, b.language_id, COALESCE(l.name, ''),
		       b.summary, b.isbn, b.publication_date
		FROM books b
		LEFT JOIN languages l ON l.id = b.language_id
		WHERE b.id = $1
	`
	book, err := scanBook(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}

	if book.AuthorID != nil {
		author, err := s.AuthorByID(ctx, *book.AuthorID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		book.Author = author
	}
	if err := s.attachGenres(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// CreateBook inserts a book and its genre set in one transaction. A
// duplicate ISBN fails with ErrDuplicateISBN.
func (s *service) CreateBook(ctx context.Context, in BookInput) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.create_book",
		trace.WithAttributes(attribute.String("book.isbn", in.ISBN)),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	insert := `
		INSERT INTO books (title, author_id, language_id, summary, isbn, publication_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, insert,
		in.Title, in.AuthorID, in.LanguageID, in.Summary, in.ISBN, in.PublicationDate,
	).Scan(&id)
	if err != nil {
		return nil, mapBookError(err)
	}

	if err := replaceGenres(ctx, tx, id, in.GenreIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.BookByID(ctx, id)
}

// UpdateBook replaces every form field and the genre set.
func (s *service) UpdateBook(ctx context.Context, id int64, in BookInput) (*Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	update := `
		UPDATE books
		SET title = $1, author_id = $2, language_id = $3, summary = $4,
		    isbn = $5, publication_date = $6
		WHERE id = $7
	`
	res, err := tx.ExecContext(ctx, update,
		in.Title, in.AuthorID, in.LanguageID, in.Summary, in.ISBN, in.PublicationDate, id,
	)
	if err != nil {
		return nil, mapBookError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	if err := replaceGenres(ctx, tx, id, in.GenreIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.BookByID(ctx, id)
}

// DeleteBook removes a book; its instances go with it via the schema's
// cascade rule.
func (s *service) DeleteBook(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "books", id)
}

// Authors lists all authors ordered by (last_name, first_name), page size 4.
// The list is public.
func (s *service) Authors(ctx context.Context, page int) ([]*Author, web.PageInfo, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM authors`).Scan(&total); err != nil {
		return nil, web.PageInfo{}, fmt.Errorf("failed to count authors: %w", err)
	}

	info, err := web.Paginate(web.PageRequest{Number: page, Size: authorsPageSize}, total)
	if err != nil {
		return nil, web.PageInfo{}, err
	}

	query := `
		SELECT id, first_name, last_name, date_of_birth, date_of_death
		FROM authors
		ORDER BY last_name, first_name, id
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, info.Size, info.Offset())
	if err != nil {
		return nil, web.PageInfo{}, fmt.Errorf("failed to list authors: %w", err)
	}
	defer rows.Close()

	var authors []*Author
	for rows.Next() {
		author, err := scanAuthor(rows)
		if err != nil {
			return nil, web.PageInfo{}, err
		}
		authors = append(authors, author)
	}
	return authors, info, rows.Err()
}

// AuthorByID retrieves one author.
func (s *service) AuthorByID(ctx context.Context, id int64) (*Author, error) {
	query := `
		SELECT id, first_name, last_name, date_of_birth, date_of_death
		FROM authors
		WHERE id = $1
	`
	author, err := scanAuthor(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get author: %w", err)
	}
	return author, nil
}

func (s *service) CreateAuthor(ctx context.Context, in AuthorInput) (*Author, error) {
	var id int64
	query := `
		INSERT INTO authors (first_name, last_name, date_of_birth, date_of_death)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		in.FirstName, in.LastName, in.DateOfBirth, in.DateOfDeath,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create author: %w", err)
	}
	return s.AuthorByID(ctx, id)
}

func (s *service) UpdateAuthor(ctx context.Context, id int64, in AuthorInput) (*Author, error) {
	query := `
		UPDATE authors
		SET first_name = $1, last_name = $2, date_of_birth = $3, date_of_death = $4
		WHERE id = $5
	`
	res, err := s.db.ExecContext(ctx, query,
		in.FirstName, in.LastName, in.DateOfBirth, in.DateOfDeath, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update author: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.AuthorByID(ctx, id)
}

// DeleteAuthor removes an author; books keep existing with a nulled author
// reference via the schema's set-null rule.
func (s *service) DeleteAuthor(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "authors", id)
}

func (s *service) Genres(ctx context.Context) ([]*Genre, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM genres ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	defer rows.Close()

	var genres []*Genre
	for rows.Next() {
		g := &Genre{}
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

func (s *service) CreateGenre(ctx context.Context, name string) (*Genre, error) {
	g := &Genre{Name: name}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO genres (name) VALUES ($1) RETURNING id`, name,
	).Scan(&g.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create genre: %w", err)
	}
	return g, nil
}

func (s *service) DeleteGenre(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "genres", id)
}

func (s *service) Languages(ctx context.Context) ([]*Language, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM languages ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list languages: %w", err)
	}
	defer rows.Close()

	var languages []*Language
	for rows.Next() {
		l := &Language{}
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		languages = append(languages, l)
	}
	return languages, rows.Err()
}

func (s *service) CreateLanguage(ctx context.Context, name string) (*Language, error) {
	l := &Language{Name: name}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO languages (name) VALUES ($1) RETURNING id`, name,
	).Scan(&l.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create language: %w", err)
	}
	return l, nil
}

// DeleteLanguage is restricted while any book references the language.
func (s *service) DeleteLanguage(ctx context.Context, id int64) error {
	err := s.deleteByID(ctx, "languages", id)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
		return ErrLanguageInUse
	}
	return err
}

func (s *service) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *service) attachGenres(ctx context.Context, book *Book) error {
	query := `
		SELECT g.id, g.name
		FROM genres g
		JOIN book_genres bg ON bg.genre_id = g.id
		WHERE bg.book_id = $1
		ORDER BY g.name
	`
	rows, err := s.db.QueryContext(ctx, query, book.ID)
	if err != nil {
		return fmt.Errorf("failed to load genres for book %d: %w", book.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var g Genre
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return err
		}
		book.Genres = append(book.Genres, g)
	}
	return rows.Err()
}

func replaceGenres(ctx context.Context, tx *sql.Tx, bookID int64, genreIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM book_genres WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("failed to clear genres: %w", err)
	}
	for _, gid := range genreIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO book_genres (book_id, genre_id) VALUES ($1, $2)`, bookID, gid,
		); err != nil {
			return fmt.Errorf("failed to attach genre %d: %w", gid, err)
		}
	}
	return nil
}

func scanBook(row interface{ Scan(...any) error }) (*Book, error) {
	book := &Book{}
	var authorID sql.NullInt64
	if err := row.Scan(
		&book.ID, &book.Title, &authorID, &book.LanguageID, &book.Language,
		&book.Summary, &book.ISBN, &book.PublicationDate,
	); err != nil {
		return nil, err
	}
	if authorID.Valid {
		book.AuthorID = &authorID.Int64
	}
	return book, nil
}

func scanAuthor(row interface{ Scan(...any) error }) (*Author, error) {
	author := &Author{}
	var born, died sql.NullTime
	if err := row.Scan(&author.ID, &author.FirstName, &author.LastName, &born, &died); err != nil {
		return nil, err
	}
	if born.Valid {
		b := born.Time
		author.DateOfBirth = &b
	}
	if died.Valid {
		d := died.Time
		author.DateOfDeath = &d
	}
	return author, nil
}

func mapBookError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return ErrDuplicateISBN
	}
	return fmt.Errorf("failed to save book: %w", err)
}
