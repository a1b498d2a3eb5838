// internal/membership/domain.go
package membership

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// CapabilityViewBorrowedBooks lets a librarian see every copy on loan and
// renew loans.
const CapabilityViewBorrowedBooks = "can-view-borrowed-books"

var (
	// ErrNotFound is returned when no member exists for a given ID.
	ErrNotFound = errors.New("member not found")
	// ErrInvalidCredentials is returned on a failed login. The reason
	// (unknown email vs wrong password) is deliberately not disclosed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail is returned when registering an email that is taken.
	ErrDuplicateEmail = errors.New("a member with this email already exists")
	// ErrRateLimited is returned when authentication attempts come too fast.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Member is a library user: a patron or a librarian, distinguished only by
// the capabilities granted to them.
type Member struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Credential holds a member's login secret, never serialized.
type Credential struct {
	MemberID     uuid.UUID `json:"-"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
}
