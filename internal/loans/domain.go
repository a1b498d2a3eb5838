// internal/loans/domain.go
package loans

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no book instance exists for a given ID.
var ErrNotFound = errors.New("book instance not found")

// Status is the loan state of a book instance. The single-letter codes are
// the stored representation.
type Status string

const (
	StatusMaintenance Status = "m"
	StatusOnLoan      Status = "o"
	StatusAvailable   Status = "a"
	StatusReserved    Status = "r"
)

// Valid reports whether s is one of the known loan states.
func (s Status) Valid() bool {
	switch s {
	case StatusMaintenance, StatusOnLoan, StatusAvailable, StatusReserved:
		return true
	}
	return false
}

// Display returns the human-readable label for the status code.
func (s Status) Display() string {
	switch s {
	case StatusMaintenance:
		return "Maintenance"
	case StatusOnLoan:
		return "On loan"
	case StatusAvailable:
		return "Available"
	case StatusReserved:
		return "Reserved"
	}
	return string(s)
}

// BookInstance is a specific loanable copy of a book, tracked independently
// by status and due date. The copy is owned by the catalog; Borrower is
// advisory metadata, not ownership.
type BookInstance struct {
	ID         uuid.UUID     `json:"id"`
	BookID     *int64        `json:"book_id,omitempty"`
	BookTitle  string        `json:"book_title,omitempty"`
	Imprint    string        `json:"imprint"`
	DueBack    *time.Time    `json:"due_back,omitempty"`
	BorrowerID uuid.NullUUID `json:"borrower_id,omitempty"`
	Status     Status        `json:"status"`
}

// IsOverdue reports whether the copy's due date has passed. An unset due date
// is never overdue; the nil check must come before the date comparison.
func (bi *BookInstance) IsOverdue(today time.Time) bool {
	if bi.DueBack == nil {
		return false
	}
	return dateOnly(*bi.DueBack).Before(dateOnly(today))
}

// NewInstance carries the staff-supplied fields for creating a copy.
type NewInstance struct {
	BookID  int64
	Imprint string
	Status  Status
}
