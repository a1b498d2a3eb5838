// internal/catalog/service.go
package catalog

import (
	"context"

	"locallibrary/internal/web"
)

// Service defines the interface for the catalog: books, authors, genres and
// languages, plus the index summary.
type Service interface {
	Summary(ctx context.Context) (*LibrarySummary, error)

	Books(ctx context.Context, page int) ([]*Book, web.PageInfo, error)
	BookByID(ctx context.Context, id int64) (*Book, error)
	CreateBook(ctx context.Context, in BookInput) (*Book, error)
	UpdateBook(ctx context.Context, id int64, in BookInput) (*Book, error)
	DeleteBook(ctx context.Context, id int64) error

	Authors(ctx context.Context, page int) ([]*Author, web.PageInfo, error)
	AuthorByID(ctx context.Context, id int64) (*Author, error)
	CreateAuthor(ctx context.Context, in AuthorInput) (*Author, error)
	UpdateAuthor(ctx context.Context, id int64, in AuthorInput) (*Author, error)
	DeleteAuthor(ctx context.Context, id int64) error

	Genres(ctx context.Context) ([]*Genre, error)
	CreateGenre(ctx context.Context, name string) (*Genre, error)
	DeleteGenre(ctx context.Context, id int64) error

	Languages(ctx context.Context) ([]*Language, error)
	CreateLanguage(ctx context.Context, name string) (*Language, error)
	DeleteLanguage(ctx context.Context, id int64) error
}
