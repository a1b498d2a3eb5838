// internal/loans/handler.go
package loans

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"locallibrary/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// BorrowedPath is where an accepted renewal redirects to: the librarian
// all-borrowed view.
const BorrowedPath = "/catalog/borrowed"

const dateLayout = "2006-01-02"

type Handler struct {
	service  Service
	renderer web.Renderer
	now      func() time.Time
}

func NewHandler(service Service, renderer web.Renderer) *Handler {
	return &Handler{
		service:  service,
		renderer: renderer,
		now:      time.Now,
	}
}

// MyBorrowed lists the copies currently on loan to the viewer.
func (h *Handler) MyBorrowed(w http.ResponseWriter, r *http.Request) {
	viewer, ok := web.ViewerFrom(r.Context())
	if !ok {
		web.RedirectToLogin(w, r)
		return
	}

	page, ok := web.PageParam(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	instances, info, err := h.service.BorrowedByViewer(r.Context(), viewer.ID, page)
	if err != nil {
		if errors.Is(err, web.ErrPageOutOfRange) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.renderer.Render(w, http.StatusOK, "my-borrowed", map[string]any{
		"books": h.withOverdue(instances),
		"page":  info,
	})
}

// Available lists available copies filtered by borrower == viewer, kept as
// observed in the source system.
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	viewer, ok := web.ViewerFrom(r.Context())
	if !ok {
		web.RedirectToLogin(w, r)
		return
	}

	instances, err := h.service.AvailableForViewer(r.Context(), viewer.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.renderer.Render(w, http.StatusOK, "available", map[string]any{
		"books": h.withOverdue(instances),
	})
}

// AllBorrowed is the librarian view of everything on loan. The capability
// gate is applied as route middleware.
func (h *Handler) AllBorrowed(w http.ResponseWriter, r *http.Request) {
	instances, err := h.service.AllBorrowed(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.renderer.Render(w, http.StatusOK, "borrowed", map[string]any{
		"books": h.withOverdue(instances),
	})
}

// RenewForm presents the renewal form pre-populated three weeks out.
func (h *Handler) RenewForm(w http.ResponseWriter, r *http.Request) {
	bi, ok := h.lookupInstance(w, r)
	if !ok {
		return
	}

	h.renderer.Render(w, http.StatusOK, "renew-book-librarian", map[string]any{
		"book_instance": bi,
		"form": map[string]any{
			"due_back": DefaultRenewalDate(h.now()).Format(dateLayout),
		},
	})
}

// RenewSubmit binds the submitted date and runs the renewal. A rejected date
// re-presents the form inline with the specific message; an accepted one
// persists and redirects to the all-borrowed view.
func (h *Handler) RenewSubmit(w http.ResponseWriter, r *http.Request) {
	bi, ok := h.lookupInstance(w, r)
	if !ok {
		return
	}

	var form struct {
		DueBack string `json:"due_back"`
	}
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	proposed, err := time.Parse(dateLayout, form.DueBack)
	if err != nil {
		h.rerenderForm(w, bi, form.DueBack, "Enter a valid date.")
		return
	}

	if _, err := h.service.Renew(r.Context(), bi.ID, proposed, h.now()); err != nil {
		switch {
		case errors.Is(err, ErrRenewalInPast), errors.Is(err, ErrRenewalTooFarAhead):
			h.rerenderForm(w, bi, form.DueBack, err.Error())
		case errors.Is(err, ErrNotFound):
			http.NotFound(w, r)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	http.Redirect(w, r, BorrowedPath, http.StatusFound)
}

// CreateInstance registers a new copy of a book (staff action).
func (h *Handler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	var form struct {
		Imprint string `json:"imprint"`
		Status  Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if form.Status != "" && !form.Status.Valid() {
		h.renderer.Render(w, http.StatusOK, "instance-form", map[string]any{
			"form":   form,
			"errors": map[string]any{"status": "Select a valid choice."},
		})
		return
	}

	bi, err := h.service.CreateInstance(r.Context(), NewInstance{
		BookID:  bookID,
		Imprint: form.Imprint,
		Status:  form.Status,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(bi)
}

func (h *Handler) lookupInstance(w http.ResponseWriter, r *http.Request) (*BookInstance, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	bi, err := h.service.InstanceByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return nil, false
	}
	return bi, true
}

// rerenderForm shows the renewal form again with the field error. The
// failure is part of the page, not a redirect.
func (h *Handler) rerenderForm(w http.ResponseWriter, bi *BookInstance, submitted, message string) {
	h.renderer.Render(w, http.StatusOK, "renew-book-librarian", map[string]any{
		"book_instance": bi,
		"form": map[string]any{
			"due_back": submitted,
		},
		"errors": map[string]any{
			"due_back": message,
		},
	})
}

// instanceView decorates a copy with its derived overdue flag.
type instanceView struct {
	*BookInstance
	IsOverdue bool `json:"is_overdue"`
}

func (h *Handler) withOverdue(instances []*BookInstance) []instanceView {
	today := h.now()
	views := make([]instanceView, 0, len(instances))
	for _, bi := range instances {
		views = append(views, instanceView{BookInstance: bi, IsOverdue: bi.IsOverdue(today)})
	}
	return views
}
