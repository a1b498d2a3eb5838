// internal/catalog/handler.go
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"locallibrary/internal/loans"
	"locallibrary/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const dateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CopyLister is the slice of the loan service the book detail page needs.
type CopyLister interface {
	InstancesForBook(ctx context.Context, bookID int64) ([]*loans.BookInstance, error)
}

type Handler struct {
	service  Service
	copies   CopyLister
	renderer web.Renderer
	visits   metric.Int64Counter
}

func NewHandler(service Service, copies CopyLister, renderer web.Renderer) *Handler {
	visits, err := otel.Meter("locallibrary/catalog").Int64Counter(
		"catalog.index.visits",
		metric.WithDescription("Number of index page views."),
	)
	if err != nil {
		otel.Handle(err)
	}
	return &Handler{
		service:  service,
		copies:   copies,
		renderer: renderer,
		visits:   visits,
	}
}

// Index shows the library-wide counts. The source system's session visit
// counter is recorded as a metric instead.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if h.visits != nil {
		h.visits.Add(r.Context(), 1)
	}

	sum, err := h.service.Summary(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.renderer.Render(w, http.StatusOK, "index", map[string]any{
		"num_books":               sum.NumBooks,
		"num_instances":           sum.NumInstances,
		"num_instances_available": sum.NumInstancesAvailable,
		"num_authors":             sum.NumAuthors,
		"the":                     sum.TitlesContainingThe,
		"fiction":                 sum.FictionBooks,
	})
}

// Books lists the catalog two to a page.
func (h *Handler) Books(w http.ResponseWriter, r *http.Request) {
	page, ok := web.PageParam(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	books, info, err := h.service.Books(r.Context(), page)
	if err != nil {
		h.listError(w, r, err)
		return
	}

	h.renderer.Render(w, http.StatusOK, "books", map[string]any{
		"book_list": books,
		"page":      info,
	})
}

// BookDetails shows one book together with its loanable copies.
func (h *Handler) BookDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	book, err := h.service.BookByID(r.Context(), id)
	if err != nil {
		h.listError(w, r, err)
		return
	}

	copies, err := h.copies.InstancesForBook(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.renderer.Render(w, http.StatusOK, "book-details", map[string]any{
		"book":   book,
		"copies": copies,
	})
}

// Authors lists authors four to a page, ordered (last_name, first_name).
func (h *Handler) Authors(w http.ResponseWriter, r *http.Request) {
	page, ok := web.PageParam(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	authors, info, err := h.service.Authors(r.Context(), page)
	if err != nil {
		h.listError(w, r, err)
		return
	}

	h.renderer.Render(w, http.StatusOK, "authors", map[string]any{
		"author_list": authors,
		"page":        info,
	})
}

// AuthorDetails shows one author.
func (h *Handler) AuthorDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	author, err := h.service.AuthorByID(r.Context(), id)
	if err != nil {
		h.listError(w, r, err)
		return
	}

	h.renderer.Render(w, http.StatusOK, "author-details", map[string]any{
		"author": author,
	})
}

// bookForm is the book create/update form. Structural rules live in the
// validate tags; uniqueness of the ISBN is enforced by the catalog itself.
type bookForm struct {
	Title           string  `json:"title" validate:"required,max=200"`
	AuthorID        *int64  `json:"author_id"`
	LanguageID      int64   `json:"language_id" validate:"required"`
	Summary         string  `json:"summary" validate:"max=1000"`
	ISBN            string  `json:"isbn" validate:"required,len=13"`
	PublicationDate string  `json:"publication_date" validate:"required,datetime=2006-01-02"`
	GenreIDs        []int64 `json:"genre_ids"`
}

func (f bookForm) input() BookInput {
	published, _ := time.Parse(dateLayout, f.PublicationDate)
	return BookInput{
		Title:           f.Title,
		AuthorID:        f.AuthorID,
		LanguageID:      f.LanguageID,
		Summary:         f.Summary,
		ISBN:            f.ISBN,
		PublicationDate: published,
		GenreIDs:        f.GenreIDs,
	}
}

// CreateBook handles the book creation form; success redirects to the new
// book's detail page.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var form bookForm
	if !h.bindForm(w, r, "book-form", &form) {
		return
	}

	book, err := h.service.CreateBook(r.Context(), form.input())
	if err != nil {
		h.bookSaveError(w, "book-form", form, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/catalog/books/%d", book.ID), http.StatusFound)
}

// UpdateBook handles the book update form.
func (h *Handler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var form bookForm
	if !h.bindForm(w, r, "book-form", &form) {
		return
	}

	book, err := h.service.UpdateBook(r.Context(), id, form.input())
	if err != nil {
		h.bookSaveError(w, "book-form", form, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/catalog/books/%d", book.ID), http.StatusFound)
}

// DeleteBook removes a book and, by cascade, its copies.
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		h.listError(w, r, err)
		return
	}
	http.Redirect(w, r, "/catalog/books", http.StatusFound)
}

type authorForm struct {
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	DateOfDeath string `json:"date_of_death" validate:"omitempty,datetime=2006-01-02"`
}

func (f authorForm) input() AuthorInput {
	in := AuthorInput{FirstName: f.FirstName, LastName: f.LastName}
	if f.DateOfBirth != "" {
		born, _ := time.Parse(dateLayout, f.DateOfBirth)
		in.DateOfBirth = &born
	}
	if f.DateOfDeath != "" {
		died, _ := time.Parse(dateLayout, f.DateOfDeath)
		in.DateOfDeath = &died
	}
	return in
}

// CreateAuthor handles the author creation form; success redirects to the
// author list.
func (h *Handler) CreateAuthor(w http.ResponseWriter, r *http.Request) {
	var form authorForm
	if !h.bindForm(w, r, "author-form", &form) {
		return
	}

	if _, err := h.service.CreateAuthor(r.Context(), form.input()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/catalog/authors", http.StatusFound)
}

// UpdateAuthor handles the author update form.
func (h *Handler) UpdateAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var form authorForm
	if !h.bindForm(w, r, "author-form", &form) {
		return
	}

	author, err := h.service.UpdateAuthor(r.Context(), id, form.input())
	if err != nil {
		h.listError(w, r, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/catalog/authors/%d", author.ID), http.StatusFound)
}

// DeleteAuthor removes an author; their books keep existing with a nulled
// author reference.
func (h *Handler) DeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteAuthor(r.Context(), id); err != nil {
		h.listError(w, r, err)
		return
	}
	http.Redirect(w, r, "/catalog/authors", http.StatusFound)
}

// Genres lists all genres.
func (h *Handler) Genres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.service.Genres(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, genres)
}

// CreateGenre registers a new genre (catalog maintainer action).
func (h *Handler) CreateGenre(w http.ResponseWriter, r *http.Request) {
	name, ok := h.bindName(w, r, 200)
	if !ok {
		return
	}
	genre, err := h.service.CreateGenre(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, genre)
}

// DeleteGenre removes a genre; book associations are dropped with it.
func (h *Handler) DeleteGenre(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGenre(r.Context(), id); err != nil {
		h.listError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Languages lists all languages.
func (h *Handler) Languages(w http.ResponseWriter, r *http.Request) {
	languages, err := h.service.Languages(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, languages)
}

// CreateLanguage registers a new language.
func (h *Handler) CreateLanguage(w http.ResponseWriter, r *http.Request) {
	name, ok := h.bindName(w, r, 100)
	if !ok {
		return
	}
	language, err := h.service.CreateLanguage(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, language)
}

// DeleteLanguage refuses to remove a language still referenced by a book.
func (h *Handler) DeleteLanguage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	err := h.service.DeleteLanguage(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrLanguageInUse):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.listError(w, r, err)
	}
}

// bindForm decodes and validates a form payload. Validation failures
// re-present the form inline with field-level messages, HTTP 200.
func (h *Handler) bindForm(w http.ResponseWriter, r *http.Request, view string, form any) bool {
	if err := json.NewDecoder(r.Body).Decode(form); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(form); err != nil {
		h.renderer.Render(w, http.StatusOK, view, map[string]any{
			"form":   form,
			"errors": fieldErrors(err),
		})
		return false
	}
	return true
}

func (h *Handler) bindName(w http.ResponseWriter, r *http.Request, maxLen int) (string, bool) {
	var form struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	// The column limits are in characters, so the length check must be too.
	if form.Name == "" || utf8.RuneCountInString(form.Name) > maxLen {
		h.renderer.Render(w, http.StatusOK, "name-form", map[string]any{
			"form":   form,
			"errors": map[string]any{"name": "Enter a name of valid length."},
		})
		return "", false
	}
	return form.Name, true
}

// bookSaveError turns a duplicate ISBN into a field error on the
// re-presented form; anything else is a server error.
func (h *Handler) bookSaveError(w http.ResponseWriter, view string, form bookForm, err error) {
	switch {
	case errors.Is(err, ErrDuplicateISBN):
		h.renderer.Render(w, http.StatusOK, view, map[string]any{
			"form":   form,
			"errors": map[string]any{"isbn": ErrDuplicateISBN.Error()},
		})
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) listError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, web.ErrPageOutOfRange):
		http.NotFound(w, r)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func fieldErrors(err error) map[string]any {
	out := map[string]any{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["__all__"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = "This field is required."
		case "max", "len":
			out[fe.Field()] = fmt.Sprintf("Ensure this value satisfies %s=%s.", fe.Tag(), fe.Param())
		case "datetime":
			out[fe.Field()] = "Enter a valid date."
		default:
			out[fe.Field()] = "Enter a valid value."
		}
	}
	return out
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
