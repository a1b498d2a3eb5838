// internal/catalog/domain.go
package catalog

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a catalog record does not exist.
	ErrNotFound = errors.New("catalog record not found")
	// ErrDuplicateISBN is returned when a book's ISBN collides with an
	// existing one. Surfaced to the caller as a field-level form error.
	ErrDuplicateISBN = errors.New("Book with this ISBN already exists.")
	// ErrLanguageInUse is returned when deleting a language still referenced
	// by a book.
	ErrLanguageInUse = errors.New("language is referenced by existing books")
)

// Genre classifies books; many-to-many with Book.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Language is the language a book is written in. Every book references one;
// a referenced language cannot be deleted.
type Language struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Author writes zero or many books. Deleting an author nulls the reference
// on their books rather than cascading.
type Author struct {
	ID          int64      `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	DateOfDeath *time.Time `json:"date_of_death,omitempty"`
}

// DisplayName renders the author list form: "Last, First".
func (a *Author) DisplayName() string {
	return a.LastName + ", " + a.FirstName
}

// Book is a catalogued work, not a specific loanable copy.
type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	AuthorID        *int64    `json:"author_id,omitempty"`
	Author          *Author   `json:"author,omitempty"`
	LanguageID      int64     `json:"language_id"`
	Language        string    `json:"language,omitempty"`
	Summary         string    `json:"summary"`
	ISBN            string    `json:"isbn"`
	PublicationDate time.Time `json:"publication_date"`
	Genres          []Genre   `json:"genres,omitempty"`
}

// DisplayGenre joins the first three genre names for list displays.
func (b *Book) DisplayGenre() string {
	names := make([]string, 0, 3)
	for _, g := range b.Genres {
		if len(names) == 3 {
			break
		}
		names = append(names, g.Name)
	}
	return strings.Join(names, ",")
}

// LibrarySummary is the set of counts shown on the index page.
type LibrarySummary struct {
	NumBooks              int `json:"num_books"`
	NumInstances          int `json:"num_instances"`
	NumInstancesAvailable int `json:"num_instances_available"`
	NumAuthors            int `json:"num_authors"`
	TitlesContainingThe   int `json:"the"`
	FictionBooks          int `json:"fiction"`
}

// BookInput carries the fields of the book create/update form.
type BookInput struct {
	Title           string
	AuthorID        *int64
	LanguageID      int64
	Summary         string
	ISBN            string
	PublicationDate time.Time
	GenreIDs        []int64
}

// AuthorInput carries the fields of the author create/update form.
type AuthorInput struct {
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	DateOfDeath *time.Time
}
