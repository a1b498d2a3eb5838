package loans

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"locallibrary/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService keeps instances in memory and applies the same renewal policy
// as the real service: validate first, persist only on success.
type fakeService struct {
	instances map[uuid.UUID]*BookInstance
}

func newFakeService(instances ...*BookInstance) *fakeService {
	s := &fakeService{instances: make(map[uuid.UUID]*BookInstance)}
	for _, bi := range instances {
		s.instances[bi.ID] = bi
	}
	return s
}

func (s *fakeService) InstanceByID(ctx context.Context, id uuid.UUID) (*BookInstance, error) {
	bi, ok := s.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	return bi, nil
}

func (s *fakeService) InstancesForBook(ctx context.Context, bookID int64) ([]*BookInstance, error) {
	var out []*BookInstance
	for _, bi := range s.instances {
		if bi.BookID != nil && *bi.BookID == bookID {
			out = append(out, bi)
		}
	}
	return out, nil
}

func (s *fakeService) CreateInstance(ctx context.Context, in NewInstance) (*BookInstance, error) {
	bi := &BookInstance{ID: uuid.New(), BookID: &in.BookID, Imprint: in.Imprint, Status: in.Status}
	s.instances[bi.ID] = bi
	return bi, nil
}

func (s *fakeService) BorrowedByViewer(ctx context.Context, viewerID uuid.UUID, page int) ([]*BookInstance, web.PageInfo, error) {
	var out []*BookInstance
	for _, bi := range s.instances {
		if bi.Status == StatusOnLoan && bi.BorrowerID.Valid && bi.BorrowerID.UUID == viewerID {
			out = append(out, bi)
		}
	}
	info, err := web.Paginate(web.PageRequest{Number: page, Size: borrowedPageSize}, len(out))
	if err != nil {
		return nil, web.PageInfo{}, err
	}
	return out, info, nil
}

func (s *fakeService) AvailableForViewer(ctx context.Context, viewerID uuid.UUID) ([]*BookInstance, error) {
	var out []*BookInstance
	for _, bi := range s.instances {
		if bi.Status == StatusAvailable && bi.BorrowerID.Valid && bi.BorrowerID.UUID == viewerID {
			out = append(out, bi)
		}
	}
	return out, nil
}

func (s *fakeService) AllBorrowed(ctx context.Context) ([]*BookInstance, error) {
	var out []*BookInstance
	for _, bi := range s.instances {
		if bi.Status == StatusOnLoan {
			out = append(out, bi)
		}
	}
	return out, nil
}

func (s *fakeService) Renew(ctx context.Context, id uuid.UUID, proposed, today time.Time) (*BookInstance, error) {
	bi, ok := s.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	due, err := ValidateRenewal(proposed, today)
	if err != nil {
		return nil, err
	}
	bi.DueBack = &due
	return bi, nil
}

func fixedNow() time.Time {
	return day(2026, time.March, 10)
}

func onLoanInstance(borrower uuid.UUID, due time.Time) *BookInstance {
	bookID := int64(7)
	return &BookInstance{
		ID:         uuid.New(),
		BookID:     &bookID,
		BookTitle:  "The Name of the Wind",
		Imprint:    "DAW Books, 2007",
		DueBack:    &due,
		BorrowerID: uuid.NullUUID{UUID: borrower, Valid: true},
		Status:     StatusOnLoan,
	}
}

func newTestHandler(service Service) *Handler {
	h := NewHandler(service, web.JSON{})
	h.now = fixedNow
	return h
}

func renewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/catalog/book/{id}/renew", h.RenewForm)
	r.Post("/catalog/book/{id}/renew", h.RenewSubmit)
	return r
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) (string, map[string]any) {
	t.Helper()
	var body struct {
		View    string         `json:"view"`
		Context map[string]any `json:"context"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.View, body.Context
}

func TestRenewFormDefaultsThreeWeeksOut(t *testing.T) {
	bi := onLoanInstance(uuid.New(), fixedNow().AddDate(0, 0, 3))
	h := newTestHandler(newFakeService(bi))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/catalog/book/"+bi.ID.String()+"/renew", nil)
	renewRouter(h).ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	view, data := decodeView(t, rec)
	assert.Equal(t, "renew-book-librarian", view)
	form := data["form"].(map[string]any)
	assert.Equal(t, "2026-03-31", form["due_back"])
	assert.Nil(t, data["errors"])
}

func TestRenewSubmitAcceptedPersistsAndRedirects(t *testing.T) {
	original := fixedNow().AddDate(0, 0, 3)
	bi := onLoanInstance(uuid.New(), original)
	service := newFakeService(bi)
	h := newTestHandler(service)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/catalog/book/"+bi.ID.String()+"/renew",
		strings.NewReader(`{"due_back": "2026-04-07"}`))
	renewRouter(h).ServeHTTP(rec, r)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, BorrowedPath, rec.Header().Get("Location"))

	stored := service.instances[bi.ID]
	require.NotNil(t, stored.DueBack)
	assert.Equal(t, day(2026, time.April, 7), *stored.DueBack)
}

func TestRenewSubmitRejectedRerendersUnchanged(t *testing.T) {
	original := fixedNow().AddDate(0, 0, 3)

	tests := []struct {
		name      string
		submitted string
		message   string
	}{
		{"two days in the past", "2026-03-08", "Invalid date - renewal in past"},
		{"five weeks ahead", "2026-04-14", "Invalid date - renewal more than 4 weeks ahead"},
		{"not a date at all", "next tuesday", "Enter a valid date."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bi := onLoanInstance(uuid.New(), original)
			service := newFakeService(bi)
			h := newTestHandler(service)

			rec := httptest.NewRecorder()
			r := httptest.NewRequest("POST", "/catalog/book/"+bi.ID.String()+"/renew",
				strings.NewReader(`{"due_back": "`+tt.submitted+`"}`))
			renewRouter(h).ServeHTTP(rec, r)

			require.Equal(t, http.StatusOK, rec.Code, "a rejected date is a page, not an error status")
			view, data := decodeView(t, rec)
			assert.Equal(t, "renew-book-librarian", view)

			form := data["form"].(map[string]any)
			assert.Equal(t, tt.submitted, form["due_back"], "the form keeps what the librarian typed")
			fieldErrors := data["errors"].(map[string]any)
			assert.Equal(t, tt.message, fieldErrors["due_back"])

			stored := service.instances[bi.ID]
			require.NotNil(t, stored.DueBack)
			assert.Equal(t, original, *stored.DueBack, "a rejected renewal must not change the due date")
		})
	}
}

func TestRenewUnknownInstanceIsNotFound(t *testing.T) {
	h := newTestHandler(newFakeService())
	router := renewRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog/book/"+uuid.NewString()+"/renew", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog/book/not-a-uuid/renew", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenewAnonymousRedirectsToLogin(t *testing.T) {
	bi := onLoanInstance(uuid.New(), fixedNow().AddDate(0, 0, 3))
	h := newTestHandler(newFakeService(bi))

	identity := anonymousIdentity{}
	r := chi.NewRouter()
	r.Use(web.WithViewer(identity))
	r.With(web.RequireCapability(identity, "can-view-borrowed-books")).
		Get("/catalog/book/{id}/renew", h.RenewForm)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/catalog/book/"+bi.ID.String()+"/renew", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), web.LoginPath)
}

type anonymousIdentity struct{}

func (anonymousIdentity) ResolveViewer(r *http.Request) (*web.Viewer, bool) { return nil, false }
func (anonymousIdentity) HasCapability(ctx context.Context, viewer *web.Viewer, capability string) bool {
	return false
}

func TestCreateInstanceInvalidStatusIsFieldError(t *testing.T) {
	service := newFakeService()
	h := newTestHandler(service)
	router := chi.NewRouter()
	router.Post("/catalog/books/{id}/instances", h.CreateInstance)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/catalog/books/7/instances",
		strings.NewReader(`{"imprint": "Orbit, 2015", "status": "z"}`))
	router.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code, "a bad status re-presents the form, not a server error")
	view, data := decodeView(t, rec)
	assert.Equal(t, "instance-form", view)
	fieldErrs := data["errors"].(map[string]any)
	assert.Equal(t, "Select a valid choice.", fieldErrs["status"])
	assert.Empty(t, service.instances, "nothing is created on a rejected form")

	rec = httptest.NewRecorder()
	r = httptest.NewRequest("POST", "/catalog/books/7/instances",
		strings.NewReader(`{"imprint": "Orbit, 2015", "status": "a"}`))
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestMyBorrowedFiltersToViewer(t *testing.T) {
	viewer := &web.Viewer{ID: uuid.New(), Email: "reader@example.com", Name: "Reader"}
	mine := onLoanInstance(viewer.ID, fixedNow().AddDate(0, 0, -1))
	theirs := onLoanInstance(uuid.New(), fixedNow().AddDate(0, 0, 5))
	h := newTestHandler(newFakeService(mine, theirs))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/catalog/mybooks", nil)
	r = r.WithContext(web.ContextWithViewer(r.Context(), viewer))
	h.MyBorrowed(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	view, data := decodeView(t, rec)
	assert.Equal(t, "my-borrowed", view)

	books := data["books"].([]any)
	require.Len(t, books, 1)
	entry := books[0].(map[string]any)
	assert.Equal(t, mine.ID.String(), entry["id"])
	assert.Equal(t, true, entry["is_overdue"], "a copy due yesterday is overdue")
}

func TestMyBorrowedBadPageIsNotFound(t *testing.T) {
	viewer := &web.Viewer{ID: uuid.New(), Email: "reader@example.com", Name: "Reader"}
	h := newTestHandler(newFakeService(onLoanInstance(viewer.ID, fixedNow())))

	for _, target := range []string{"/catalog/mybooks?page=oops", "/catalog/mybooks?page=99"} {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("GET", target, nil)
		r = r.WithContext(web.ContextWithViewer(r.Context(), viewer))
		h.MyBorrowed(rec, r)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestMyBorrowedAnonymousRedirects(t *testing.T) {
	h := newTestHandler(newFakeService())

	rec := httptest.NewRecorder()
	h.MyBorrowed(rec, httptest.NewRequest("GET", "/catalog/mybooks", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), web.LoginPath)
}
