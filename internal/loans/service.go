// internal/loans/service.go
package loans

import (
	"context"
	"time"

	"locallibrary/internal/web"

	"github.com/google/uuid"
)

// Service defines the interface for the loan domain: the view selectors over
// book instances and the librarian renewal workflow.
type Service interface {
	// InstanceByID looks up a single copy; ErrNotFound when absent.
	InstanceByID(ctx context.Context, id uuid.UUID) (*BookInstance, error)

	// InstancesForBook lists every copy of a book, due date ascending.
	InstancesForBook(ctx context.Context, bookID int64) ([]*BookInstance, error)

	// CreateInstance registers a new copy (staff action).
	CreateInstance(ctx context.Context, in NewInstance) (*BookInstance, error)

	// BorrowedByViewer is the "my borrowed" view: copies on loan to the
	// viewer, due date ascending, page size 5.
	BorrowedByViewer(ctx context.Context, viewerID uuid.UUID, page int) ([]*BookInstance, web.PageInfo, error)

	// AvailableForViewer filters by borrower == viewer AND status available,
	// preserved as observed in the source system.
	AvailableForViewer(ctx context.Context, viewerID uuid.UUID) ([]*BookInstance, error)

	// AllBorrowed is the librarian view of every copy on loan.
	AllBorrowed(ctx context.Context) ([]*BookInstance, error)

	// Renew validates the proposed due date and, only if valid, persists it.
	Renew(ctx context.Context, id uuid.UUID, proposed, today time.Time) (*BookInstance, error)
}
