package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

func bookRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "title", "hardcover_id", "hardcover_slug", "created_at", "updated_at"})
}

func bookAuthorRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"book_id", "id", "name", "good_reads_id", "open_library_id",
		"hardcover_id", "hardcover_slug", "created_at", "updated_at",
	})
}

func editionRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "book_id", "isbn_13", "hardcover_id", "created_at"})
}

func TestPgBookRepository_Create(t *testing.T) {
	t.Run("creates book with attribution links", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)
		ctx := context.Background()

		now := time.Now().UTC()
		book := &domain.Book{
			Title: "The Fellowship of the Ring",
			Authors: []domain.Author{
				{ID: uuid.New(), Name: "J. R. R. Tolkien"},
			},
		}

		mock.ExpectQuery(`INSERT INTO books`).
			WithArgs(pgxmock.AnyArg(), "The Fellowship of the Ring", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		batch := mock.ExpectBatch()
		batch.ExpectExec(`INSERT INTO book_authors`).
			WithArgs(pgxmock.AnyArg(), book.Authors[0].ID).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		created, err := repo.Create(ctx, book)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects blank title", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)

		_, err = repo.Create(context.Background(), &domain.Book{Title: "   "})
		assert.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestPgBookRepository_GetByID(t *testing.T) {
	t.Run("hydrates authors and editions", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)
		ctx := context.Background()

		now := time.Now().UTC()
		bookID := uuid.New()
		authorID := uuid.New()
		isbn := "9780261103573"

		mock.ExpectQuery(`SELECT .+ FROM books WHERE id = \$1`).
			WithArgs(bookID).
			WillReturnRows(bookRows().AddRow(bookID, "The Hobbit", nil, nil, now, now))

		mock.ExpectQuery(`FROM book_authors ba\s+INNER JOIN authors a`).
			WithArgs([]uuid.UUID{bookID}).
			WillReturnRows(bookAuthorRows().AddRow(
				bookID, authorID, "J. R. R. Tolkien", nil, nil, nil, nil, now, now,
			))

		mock.ExpectQuery(`FROM editions\s+WHERE book_id = ANY\(\$1\)`).
			WithArgs([]uuid.UUID{bookID}).
			WillReturnRows(editionRows().
				AddRow(uuid.New(), bookID, &isbn, nil, now).
				AddRow(uuid.New(), bookID, nil, nil, now.Add(-time.Hour)))

		book, err := repo.GetByID(ctx, bookID)
		require.NoError(t, err)
		require.Len(t, book.Authors, 1)
		assert.Equal(t, "J. R. R. Tolkien", book.Authors[0].Name)
		require.Len(t, book.Editions, 2)

		// Newest edition wins.
		latest := book.LatestEdition()
		require.NotNil(t, latest)
		require.NotNil(t, latest.ISBN13)
		assert.Equal(t, isbn, *latest.ISBN13)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for unknown id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)

		id := uuid.New()
		mock.ExpectQuery(`SELECT .+ FROM books WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(bookRows())

		_, err = repo.GetByID(context.Background(), id)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestPgBookRepository_GetByIDs(t *testing.T) {
	t.Run("preserves input order and skips missing ids", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)
		ctx := context.Background()

		now := time.Now().UTC()
		id1, id2, missing := uuid.New(), uuid.New(), uuid.New()
		ids := []uuid.UUID{id2, missing, id1}

		mock.ExpectQuery(`SELECT .+ FROM books WHERE id = ANY\(\$1\)`).
			WithArgs(ids).
			WillReturnRows(bookRows().
				AddRow(id1, "First", nil, nil, now, now).
				AddRow(id2, "Second", nil, nil, now, now))

		mock.ExpectQuery(`FROM book_authors ba`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnRows(bookAuthorRows())

		mock.ExpectQuery(`FROM editions`).
			WithArgs(pgxmock.AnyArg()).
			WillReturnRows(editionRows())

		books, err := repo.GetByIDs(ctx, ids)
		require.NoError(t, err)
		require.Len(t, books, 2)
		assert.Equal(t, "Second", books[0].Title)
		assert.Equal(t, "First", books[1].Title)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns empty slice for no ids", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)

		books, err := repo.GetByIDs(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, books)
	})
}

func TestPgBookRepository_BookIDsByAuthors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgBookRepository(mock)
	ctx := context.Background()

	authorIDs := []uuid.UUID{uuid.New(), uuid.New()}
	book1, book2 := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT DISTINCT book_id\s+FROM book_authors\s+WHERE author_id = ANY\(\$1\)`).
		WithArgs(authorIDs).
		WillReturnRows(pgxmock.NewRows([]string{"book_id"}).AddRow(book1).AddRow(book2))

	bookIDs, err := repo.BookIDsByAuthors(ctx, authorIDs)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{book1, book2}, bookIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgBookRepository_LinkAuthor(t *testing.T) {
	t.Run("creates a new link", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)
		ctx := context.Background()

		bookID, authorID := uuid.New(), uuid.New()
		mock.ExpectExec(`INSERT INTO book_authors`).
			WithArgs(bookID, authorID).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		created, err := repo.LinkAuthor(ctx, bookID, authorID)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports existing link", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)

		bookID, authorID := uuid.New(), uuid.New()
		mock.ExpectExec(`INSERT INTO book_authors`).
			WithArgs(bookID, authorID).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		created, err := repo.LinkAuthor(context.Background(), bookID, authorID)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("maps missing target to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)

		bookID, authorID := uuid.New(), uuid.New()
		mock.ExpectExec(`INSERT INTO book_authors`).
			WithArgs(bookID, authorID).
			WillReturnError(&pgconn.PgError{Code: "23503"})

		_, err = repo.LinkAuthor(context.Background(), bookID, authorID)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestPgBookRepository_UnlinkAuthors(t *testing.T) {
	t.Run("removes matching links", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)
		ctx := context.Background()

		bookIDs := []uuid.UUID{uuid.New(), uuid.New()}
		authorIDs := []uuid.UUID{uuid.New()}
		mock.ExpectExec(`DELETE FROM book_authors\s+WHERE book_id = ANY\(\$1\) AND author_id = ANY\(\$2\)`).
			WithArgs(bookIDs, authorIDs).
			WillReturnResult(pgxmock.NewResult("DELETE", 2))

		removed, err := repo.UnlinkAuthors(ctx, bookIDs, authorIDs)
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no-op for empty inputs", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)

		removed, err := repo.UnlinkAuthors(context.Background(), nil, []uuid.UUID{uuid.New()})
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}

func TestPgBookRepository_AddEdition(t *testing.T) {
	t.Run("inserts edition", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)
		ctx := context.Background()

		bookID := uuid.New()
		isbn := "9780547928227"
		edition := &domain.Edition{BookID: bookID, ISBN13: &isbn}

		mock.ExpectQuery(`INSERT INTO editions`).
			WithArgs(pgxmock.AnyArg(), bookID, &isbn, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now().UTC()))

		created, err := repo.AddEdition(ctx, edition)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps missing book to not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)

		edition := &domain.Edition{BookID: uuid.New()}
		mock.ExpectQuery(`INSERT INTO editions`).
			WithArgs(pgxmock.AnyArg(), edition.BookID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23503"})

		_, err = repo.AddEdition(context.Background(), edition)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestPgBookRepository_ListMissingHardcover(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgBookRepository(mock)
	ctx := context.Background()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM books WHERE hardcover_id IS NULL OR hardcover_id = ''`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	mock.ExpectQuery(`SELECT .+ FROM books\s+WHERE hardcover_id IS NULL OR hardcover_id = ''`).
		WithArgs(50, 0).
		WillReturnRows(bookRows().AddRow(uuid.New(), "Untracked", nil, nil, now, now))

	books, total, err := repo.ListMissingHardcover(ctx, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, books, 1)
	assert.Equal(t, "Untracked", books[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgBookRepository_UpdateHardcover(t *testing.T) {
	t.Run("updates identifiers", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)
		ctx := context.Background()

		id := uuid.New()
		hcID := "439120"
		slug := "the-hobbit"
		mock.ExpectExec(`UPDATE books\s+SET hardcover_id = \$1, hardcover_slug = \$2`).
			WithArgs(&hcID, &slug, pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.UpdateHardcover(ctx, id, &hcID, &slug)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for unknown book", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgBookRepository(mock)

		id := uuid.New()
		mock.ExpectExec(`UPDATE books`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.UpdateHardcover(context.Background(), id, nil, nil)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestPgBookRepository_UpdateEditionHardcover(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgBookRepository(mock)
	ctx := context.Background()

	editionID := uuid.New()
	mock.ExpectExec(`UPDATE editions\s+SET hardcover_id = \$1\s+WHERE id = \$2`).
		WithArgs("30408853", editionID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.UpdateEditionHardcover(ctx, editionID, "30408853")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
