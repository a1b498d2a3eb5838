// internal/loans/implementation.go
package loans

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"locallibrary/internal/web"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// borrowedPageSize is the page size of the "my borrowed" view.
const borrowedPageSize = 5

// service implements the Service interface over Postgres.
type service struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewService creates a new loan service instance.
func NewService(db *sql.DB) Service {
	return &service{
		db:     db,
		tracer: otel.Tracer("locallibrary/loans"),
	}
}

const instanceColumns = `
	bi.id, bi.book_id, COALESCE(b.title, ''), bi.imprint, bi.due_back, bi.borrower_id, bi.status
`

func scanInstance(row interface{ Scan(...any) error }) (*BookInstance, error) {
	bi := &BookInstance{}
	var bookID sql.NullInt64
	var dueBack sql.NullTime
	if err := row.Scan(&bi.ID, &bookID, &bi.BookTitle, &bi.Imprint, &dueBack, &bi.BorrowerID, &bi.Status); err != nil {
		return nil, err
	}
	if bookID.Valid {
		bi.BookID = &bookID.Int64
	}
	if dueBack.Valid {
		d := dueBack.Time
		bi.DueBack = &d
	}
	return bi, nil
}

// InstanceByID retrieves a copy by its UUID.
func (s *service) InstanceByID(ctx context.Context, id uuid.UUID) (*BookInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM book_instances bi
		LEFT JOIN books b ON b.id = bi.book_id
		WHERE bi.id = $1
	`
	bi, err := scanInstance(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get book instance: %w", err)
	}
	return bi, nil
}

// InstancesForBook lists the copies of one book.
func (s *service) InstancesForBook(ctx context.Context, bookID int64) ([]*BookInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM book_instances bi
		LEFT JOIN books b ON b.id = bi.book_id
		WHERE bi.book_id = $1
		ORDER BY bi.due_back ASC NULLS FIRST, bi.id
	`
	return s.queryInstances(ctx, query, bookID)
}

// CreateInstance registers a new loanable copy. Status defaults to
// maintenance, matching a copy that is not yet shelved.
func (s *service) CreateInstance(ctx context.Context, in NewInstance) (*BookInstance, error) {
	status := in.Status
	if status == "" {
		status = StatusMaintenance
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", in.Status)
	}

	id := uuid.New()
	query := `
		INSERT INTO book_instances (id, book_id, imprint, status)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.ExecContext(ctx, query, id, in.BookID, in.Imprint, status); err != nil {
		return nil, fmt.Errorf("failed to create book instance: %w", err)
	}
	return s.InstanceByID(ctx, id)
}

// BorrowedByViewer returns the viewer's on-loan copies, due date ascending,
// strictly paginated: pages past the last fail with web.ErrPageOutOfRange.
func (s *service) BorrowedByViewer(ctx context.Context, viewerID uuid.UUID, page int) ([]*BookInstance, web.PageInfo, error) {
	var total int
	countQuery := `
		SELECT COUNT(*) FROM book_instances
		WHERE borrower_id = $1 AND status = $2
	`
	if err := s.db.QueryRowContext(ctx, countQuery, viewerID, StatusOnLoan).Scan(&total); err != nil {
		return nil, web.PageInfo{}, fmt.Errorf("failed to count borrowed instances: %w", err)
	}

	info, err := web.Paginate(web.PageRequest{Number: page, Size: borrowedPageSize}, total)
	if err != nil {
		return nil, web.PageInfo{}, err
	}

	query := `
		SELECT ` + instanceColumns + `
		FROM book_instances bi
		LEFT JOIN books b ON b.id = bi.book_id
		WHERE bi.borrower_id = $1 AND bi.status = $2
		ORDER BY bi.due_back ASC NULLS FIRST, bi.id
		LIMIT $3 OFFSET $4
	`
	instances, err := s.queryInstances(ctx, query, viewerID, StatusOnLoan, info.Size, info.Offset())
	if err != nil {
		return nil, web.PageInfo{}, err
	}
	return instances, info, nil
}

// AvailableForViewer filters by borrower == viewer AND status == available.
// An available copy conventionally has no borrower, so this view is usually
// empty; the filter is kept as observed in the source system.
func (s *service) AvailableForViewer(ctx context.Context, viewerID uuid.UUID) ([]*BookInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM book_instances bi
		LEFT JOIN books b ON b.id = bi.book_id
		WHERE bi.borrower_id = $1 AND bi.status = $2
		ORDER BY bi.due_back ASC NULLS FIRST, bi.id
	`
	return s.queryInstances(ctx, query, viewerID, StatusAvailable)
}

// AllBorrowed returns every copy on loan, regardless of borrower.
func (s *service) AllBorrowed(ctx context.Context) ([]*BookInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM book_instances bi
		LEFT JOIN books b ON b.id = bi.book_id
		WHERE bi.status = $1
		ORDER BY bi.due_back ASC NULLS FIRST, bi.id
	`
	return s.queryInstances(ctx, query, StatusOnLoan)
}

// Renew runs the renewal workflow against one copy: read, validate, write.
// Nothing is persisted on a failed validation. Concurrent renewals of the
// same copy are last-writer-wins.
func (s *service) Renew(ctx context.Context, id uuid.UUID, proposed, today time.Time) (*BookInstance, error) {
	ctx, span := s.tracer.Start(ctx, "loans.renew",
		trace.WithAttributes(
			attribute.String("instance.id", id.String()),
			attribute.String("renewal.proposed", proposed.Format("2006-01-02")),
		),
	)
	defer span.End()

	bi, err := s.InstanceByID(ctx, id)
	if err != nil {
		return nil, err
	}

	dueBack, err := ValidateRenewal(proposed, today)
	if err != nil {
		span.SetAttributes(attribute.Bool("renewal.rejected", true))
		return nil, err
	}

	query := `UPDATE book_instances SET due_back = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, dueBack, id); err != nil {
		return nil, fmt.Errorf("failed to renew book instance: %w", err)
	}

	bi.DueBack = &dueBack
	return bi, nil
}

func (s *service) queryInstances(ctx context.Context, query string, args ...any) ([]*BookInstance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query book instances: %w", err)
	}
	defer rows.Close()

	var instances []*BookInstance
	for rows.Next() {
		bi, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book instance: %w", err)
		}
		instances = append(instances, bi)
	}
	return instances, rows.Err()
}
