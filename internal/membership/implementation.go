// internal/membership/implementation.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/time/rate"
)

// service implements the Service interface.
type service struct {
	db          *sql.DB
	rateLimiter *rate.Limiter
}

// NewService creates a new membership service instance.
func NewService(db *sql.DB) Service {
	return &service{
		db:          db,
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Minute), 5), // 5 attempts per minute
	}
}

// RegisterMember creates a new member with a salted Argon2id credential.
func (s *service) RegisterMember(ctx context.Context, email, name, password string) (*Member, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	member := &Member{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		CreatedAt: time.Now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	memberQuery := `
		INSERT INTO members (id, email, name, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.ExecContext(ctx, memberQuery, member.ID, member.Email, member.Name, member.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to insert member: %w", err)
	}

	credQuery := `
		INSERT INTO credentials (member_id, password_hash, salt)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.ExecContext(ctx, credQuery, member.ID, passwordHash, salt); err != nil {
		return nil, fmt.Errorf("failed to insert credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return member, nil
}

// Authenticate verifies a member's credentials and returns the member if
// successful.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Member, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	member, err := s.getMemberByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	credential, err := s.getCredential(ctx, member.ID)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	ok, err := verifyPassword(password, credential.Salt, credential.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return member, nil
}

// GetMember retrieves a member by their ID.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	query := `
		SELECT id, email, name, created_at
		FROM members
		WHERE id = $1
	`
	member := &Member{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&member.ID, &member.Email, &member.Name, &member.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// HasCapability reports whether a member holds a named capability.
func (s *service) HasCapability(ctx context.Context, memberID uuid.UUID, capability string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM member_capabilities
			WHERE member_id = $1 AND capability = $2
		)
	`
	var has bool
	if err := s.db.QueryRowContext(ctx, query, memberID, capability).Scan(&has); err != nil {
		return false, fmt.Errorf("failed to check capability: %w", err)
	}
	return has, nil
}

// GrantCapability gives a member a named capability. Granting twice is a
// no-op.
func (s *service) GrantCapability(ctx context.Context, memberID uuid.UUID, capability string) error {
	query := `
		INSERT INTO member_capabilities (member_id, capability)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, memberID, capability); err != nil {
		return fmt.Errorf("failed to grant capability: %w", err)
	}
	return nil
}

func (s *service) getMemberByEmail(ctx context.Context, email string) (*Member, error) {
	query := `
		SELECT id, email, name, created_at
		FROM members
		WHERE email = $1
	`
	member := &Member{}
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&member.ID, &member.Email, &member.Name, &member.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (s *service) getCredential(ctx context.Context, memberID uuid.UUID) (*Credential, error) {
	query := `
		SELECT member_id, password_hash, salt
		FROM credentials
		WHERE member_id = $1
	`
	credential := &Credential{}
	err := s.db.QueryRowContext(ctx, query, memberID).Scan(
		&credential.MemberID, &credential.PasswordHash, &credential.Salt,
	)
	if err != nil {
		return nil, err
	}
	return credential, nil
}
