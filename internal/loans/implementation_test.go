package loans

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"locallibrary/internal/database"
	"locallibrary/internal/web"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to a PostgreSQL database for testing. The test is
// skipped when no database is reachable.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	pgUser := os.Getenv("PGUSER")
	pgPassword := os.Getenv("PGPASSWORD")
	pgHost := os.Getenv("PGHOST")
	pgPort := os.Getenv("PGPORT")
	pgDB := os.Getenv("PGDATABASE")

	if pgUser == "" {
		pgUser = "user"
	}
	if pgPassword == "" {
		pgPassword = "password"
	}
	if pgHost == "" {
		pgHost = "localhost"
	}
	if pgPort == "" {
		pgPort = "5432"
	}
	if pgDB == "" {
		pgDB = "testdb"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgHost, pgPort, pgUser, pgPassword, pgDB)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("skipping database tests: could not connect to postgres: %v", err)
	}

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db))

	_, err = db.Exec(`TRUNCATE TABLE book_instances, book_genres, books, authors,
		genres, languages, member_capabilities, credentials, members CASCADE`)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func seedMember(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO members (id, email, name) VALUES ($1, $2, 'Reader')`,
		id, id.String()+"@example.com")
	require.NoError(t, err)
	return id
}

func seedLoan(t *testing.T, db *sql.DB, borrower uuid.UUID, status Status, due *time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO book_instances (id, imprint, due_back, borrower_id, status)
		 VALUES ($1, 'Test Imprint', $2, $3, $4)`,
		id, due, borrower, status)
	require.NoError(t, err)
	return id
}

func due(t time.Time) *time.Time { return &t }

func TestBorrowedByViewerFiltersAndPaginates(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	ctx := context.Background()

	viewer := seedMember(t, db)
	other := seedMember(t, db)
	base := day(2026, time.March, 10)

	for i := 0; i < 7; i++ {
		seedLoan(t, db, viewer, StatusOnLoan, due(base.AddDate(0, 0, i)))
	}
	seedLoan(t, db, other, StatusOnLoan, due(base))
	seedLoan(t, db, viewer, StatusAvailable, nil)

	first, info, err := service.BorrowedByViewer(ctx, viewer, 1)
	require.NoError(t, err)
	assert.Len(t, first, 5)
	assert.Equal(t, 7, info.TotalItems, "other members' loans and available copies are excluded")
	assert.True(t, info.HasNext)

	second, info, err := service.BorrowedByViewer(ctx, viewer, 2)
	require.NoError(t, err)
	assert.Len(t, second, 2)
	assert.False(t, info.HasNext)

	_, _, err = service.BorrowedByViewer(ctx, viewer, 3)
	assert.ErrorIs(t, err, web.ErrPageOutOfRange)
}

func TestBorrowedOrderedByDueDateUnsetFirst(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	ctx := context.Background()

	viewer := seedMember(t, db)
	base := day(2026, time.March, 10)

	later := seedLoan(t, db, viewer, StatusOnLoan, due(base.AddDate(0, 0, 9)))
	unset := seedLoan(t, db, viewer, StatusOnLoan, nil)
	sooner := seedLoan(t, db, viewer, StatusOnLoan, due(base.AddDate(0, 0, 2)))

	got, _, err := service.BorrowedByViewer(ctx, viewer, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, unset, got[0].ID, "a copy with no due date sorts first")
	assert.Equal(t, sooner, got[1].ID)
	assert.Equal(t, later, got[2].ID)
}

func TestAvailableForViewerFiltersBorrowerAndStatus(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	ctx := context.Background()

	viewer := seedMember(t, db)
	other := seedMember(t, db)

	mineAvailable := seedLoan(t, db, viewer, StatusAvailable, nil)
	seedLoan(t, db, viewer, StatusOnLoan, due(day(2026, time.March, 12)))
	seedLoan(t, db, other, StatusAvailable, nil)

	got, err := service.AvailableForViewer(ctx, viewer)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mineAvailable, got[0].ID)
}

func TestAllBorrowedSpansMembers(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	ctx := context.Background()

	viewer := seedMember(t, db)
	other := seedMember(t, db)
	base := day(2026, time.March, 10)

	seedLoan(t, db, viewer, StatusOnLoan, due(base))
	seedLoan(t, db, other, StatusOnLoan, due(base.AddDate(0, 0, 1)))
	seedLoan(t, db, viewer, StatusReserved, nil)

	got, err := service.AllBorrowed(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRenewPersistsOnlyValidDates(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	ctx := context.Background()

	viewer := seedMember(t, db)
	today := day(2026, time.March, 10)
	original := today.AddDate(0, 0, 3)
	id := seedLoan(t, db, viewer, StatusOnLoan, due(original))

	_, err := service.Renew(ctx, id, today.AddDate(0, 0, -1), today)
	require.ErrorIs(t, err, ErrRenewalInPast)

	stored, err := service.InstanceByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.DueBack)
	assert.True(t, stored.DueBack.Equal(original), "a rejected renewal changes nothing")

	renewed, err := service.Renew(ctx, id, today.AddDate(0, 0, 14), today)
	require.NoError(t, err)
	require.NotNil(t, renewed.DueBack)

	stored, err = service.InstanceByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.DueBack)
	assert.True(t, stored.DueBack.Equal(today.AddDate(0, 0, 14)))
}

func TestRenewUnknownInstance(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)

	today := day(2026, time.March, 10)
	_, err := service.Renew(context.Background(), uuid.New(), today, today)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateInstanceDefaultsToMaintenance(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db)
	ctx := context.Background()

	lang := insertLanguage(t, db)
	bookID := insertBook(t, db, lang)

	bi, err := service.CreateInstance(ctx, NewInstance{BookID: bookID, Imprint: "Orbit, 2015"})
	require.NoError(t, err)
	assert.Equal(t, StatusMaintenance, bi.Status)
	assert.Equal(t, "The Fifth Season", bi.BookTitle)

	_, err = service.CreateInstance(ctx, NewInstance{BookID: bookID, Imprint: "x", Status: Status("z")})
	assert.Error(t, err)
}

func insertLanguage(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.QueryRow(
		`INSERT INTO languages (name) VALUES ('English') RETURNING id`).Scan(&id))
	return id
}

func insertBook(t *testing.T, db *sql.DB, languageID int64) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.QueryRow(
		`INSERT INTO books (title, language_id, isbn, publication_date)
		 VALUES ('The Fifth Season', $1, '9780316229296', '2015-08-04') RETURNING id`,
		languageID).Scan(&id))
	return id
}
