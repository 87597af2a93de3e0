package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// Compile-time interface verification.
var _ BookRepository = (*PgBookRepository)(nil)

// PgBookRepository is a PostgreSQL implementation of BookRepository.
type PgBookRepository struct {
	db DBTX
}

// NewPgBookRepository creates a new PostgreSQL book repository.
func NewPgBookRepository(db DBTX) *PgBookRepository {
	return &PgBookRepository{db: db}
}

const bookColumns = `id, title, hardcover_id, hardcover_slug, created_at, updated_at`

// Create inserts a new book together with its attribution links.
func (r *PgBookRepository) Create(ctx context.Context, book *domain.Book) (*domain.Book, error) {
	if book == nil {
		return nil, domain.NewValidationError("book", "book cannot be nil")
	}
	if strings.TrimSpace(book.Title) == "" {
		return nil, domain.NewValidationError("title", "book title is required")
	}

	if book.ID == uuid.Nil {
		book.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO books (id, title, hardcover_id, hardcover_slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		book.ID,
		book.Title,
		book.HardcoverID,
		book.HardcoverSlug,
		now,
	).Scan(&book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.NewAlreadyExistsError("book", book.ID.String())
		}
		return nil, fmt.Errorf("failed to create book: %w", err)
	}

	// Attribution links in one roundtrip.
	if len(book.Authors) > 0 {
		batch := &pgx.Batch{}
		for _, author := range book.Authors {
			batch.Queue(
				`INSERT INTO book_authors (book_id, author_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				book.ID, author.ID,
			)
		}
		br := r.db.SendBatch(ctx, batch)
		defer br.Close()
		for range book.Authors {
			if _, err := br.Exec(); err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23503" {
					return nil, domain.NewNotFoundError("author", "attribution link target")
				}
				return nil, fmt.Errorf("failed to link author: %w", err)
			}
		}
	}

	return book, nil
}

// GetByID retrieves a book hydrated with its authors and editions.
func (r *PgBookRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE id = $1`, bookColumns)

	row := r.db.QueryRow(ctx, query, id)
	book, err := scanBook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("book", id.String())
		}
		return nil, fmt.Errorf("failed to get book by ID: %w", err)
	}

	if err := r.hydrate(ctx, []*domain.Book{book}); err != nil {
		return nil, err
	}

	return book, nil
}

// GetByIDs retrieves hydrated books for the given ids, preserving input order.
func (r *PgBookRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Book, error) {
	if len(ids) == 0 {
		return []*domain.Book{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM books WHERE id = ANY($1)`, bookColumns)

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get books by IDs: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*domain.Book, len(ids))
	for rows.Next() {
		book, err := scanBookFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		byID[book.ID] = book
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating books: %w", err)
	}

	books := make([]*domain.Book, 0, len(byID))
	for _, id := range ids {
		if book, ok := byID[id]; ok {
			books = append(books, book)
		}
	}

	if err := r.hydrate(ctx, books); err != nil {
		return nil, err
	}

	return books, nil
}

// hydrate loads authors and editions for the given books in two queries.
func (r *PgBookRepository) hydrate(ctx context.Context, books []*domain.Book) error {
	if len(books) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(books))
	byID := make(map[uuid.UUID]*domain.Book, len(books))
	for i, book := range books {
		ids[i] = book.ID
		byID[book.ID] = book
	}

	authorQuery := `
		SELECT ba.book_id, a.id, a.name, a.good_reads_id, a.open_library_id, a.hardcover_id, a.hardcover_slug, a.created_at, a.updated_at
		FROM book_authors ba
		INNER JOIN authors a ON a.id = ba.author_id
		WHERE ba.book_id = ANY($1)
		ORDER BY a.name ASC`

	rows, err := r.db.Query(ctx, authorQuery, ids)
	if err != nil {
		return fmt.Errorf("failed to load book authors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bookID uuid.UUID
		var author domain.Author
		if err := rows.Scan(
			&bookID,
			&author.ID, &author.Name,
			&author.GoodReadsID, &author.OpenLibraryID,
			&author.HardcoverID, &author.HardcoverSlug,
			&author.CreatedAt, &author.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan book author: %w", err)
		}
		if book, ok := byID[bookID]; ok {
			book.Authors = append(book.Authors, author)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating book authors: %w", err)
	}

	editionQuery := `
		SELECT id, book_id, isbn_13, hardcover_id, created_at
		FROM editions
		WHERE book_id = ANY($1)
		ORDER BY created_at DESC`

	editionRows, err := r.db.Query(ctx, editionQuery, ids)
	if err != nil {
		return fmt.Errorf("failed to load editions: %w", err)
	}
	defer editionRows.Close()

	for editionRows.Next() {
		var edition domain.Edition
		if err := editionRows.Scan(
			&edition.ID, &edition.BookID,
			&edition.ISBN13, &edition.HardcoverID,
			&edition.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan edition: %w", err)
		}
		if book, ok := byID[edition.BookID]; ok {
			book.Editions = append(book.Editions, edition)
		}
	}
	if err := editionRows.Err(); err != nil {
		return fmt.Errorf("error iterating editions: %w", err)
	}

	return nil
}

// BookIDsByAuthors returns the distinct ids of books attributed to any of the
// given authors.
func (r *PgBookRepository) BookIDsByAuthors(ctx context.Context, authorIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(authorIDs) == 0 {
		return []uuid.UUID{}, nil
	}

	query := `
		SELECT DISTINCT book_id
		FROM book_authors
		WHERE author_id = ANY($1)
		ORDER BY book_id`

	rows, err := r.db.Query(ctx, query, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get book ids by authors: %w", err)
	}
	defer rows.Close()

	var bookIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan book id: %w", err)
		}
		bookIDs = append(bookIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating book ids: %w", err)
	}

	return bookIDs, nil
}

// LinkAuthor attributes a book to an author.
func (r *PgBookRepository) LinkAuthor(ctx context.Context, bookID, authorID uuid.UUID) (bool, error) {
	query := `
		INSERT INTO book_authors (book_id, author_id)
		VALUES ($1, $2)
		ON CONFLICT (book_id, author_id) DO NOTHING`

	result, err := r.db.Exec(ctx, query, bookID, authorID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, domain.NewNotFoundError("attribution link target", fmt.Sprintf("%s:%s", bookID, authorID))
		}
		return false, fmt.Errorf("failed to link author: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// UnlinkAuthors removes all attribution links between the given books and the
// given authors.
func (r *PgBookRepository) UnlinkAuthors(ctx context.Context, bookIDs, authorIDs []uuid.UUID) (int64, error) {
	if len(bookIDs) == 0 || len(authorIDs) == 0 {
		return 0, nil
	}

	query := `
		DELETE FROM book_authors
		WHERE book_id = ANY($1) AND author_id = ANY($2)`

	result, err := r.db.Exec(ctx, query, bookIDs, authorIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to unlink authors: %w", err)
	}

	return result.RowsAffected(), nil
}

// AddEdition inserts an edition for a book.
func (r *PgBookRepository) AddEdition(ctx context.Context, edition *domain.Edition) (*domain.Edition, error) {
	if edition == nil {
		return nil, domain.NewValidationError("edition", "edition cannot be nil")
	}
	if edition.BookID == uuid.Nil {
		return nil, domain.NewValidationError("book_id", "book id is required")
	}

	if edition.ID == uuid.Nil {
		edition.ID = uuid.New()
	}

	query := `
		INSERT INTO editions (id, book_id, isbn_13, hardcover_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		edition.ID,
		edition.BookID,
		edition.ISBN13,
		edition.HardcoverID,
		time.Now().UTC(),
	).Scan(&edition.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, domain.NewNotFoundError("book", edition.BookID.String())
		}
		return nil, fmt.Errorf("failed to add edition: %w", err)
	}

	return edition, nil
}

// ListMissingHardcover retrieves books without a Hardcover identifier.
func (r *PgBookRepository) ListMissingHardcover(ctx context.Context, limit, offset int) ([]*domain.Book, int64, error) {
	applyPaginationDefaults(&limit, &offset)

	const whereClause = `WHERE hardcover_id IS NULL OR hardcover_id = ''`

	var totalCount int64
	if err := r.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM books %s", whereClause)).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count books missing hardcover id: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM books
		%s
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2`, bookColumns, whereClause)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list books missing hardcover id: %w", err)
	}
	defer rows.Close()

	books := make([]*domain.Book, 0, limit)
	for rows.Next() {
		book, err := scanBookFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating books: %w", err)
	}

	return books, totalCount, nil
}

// UpdateHardcover sets the Hardcover identifier and slug for a book.
func (r *PgBookRepository) UpdateHardcover(ctx context.Context, id uuid.UUID, hardcoverID, hardcoverSlug *string) error {
	query := `
		UPDATE books
		SET hardcover_id = $1, hardcover_slug = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.Exec(ctx, query, hardcoverID, hardcoverSlug, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update book hardcover ids: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("book", id.String())
	}

	return nil
}

// UpdateEditionHardcover sets the Hardcover edition identifier for an edition.
func (r *PgBookRepository) UpdateEditionHardcover(ctx context.Context, editionID uuid.UUID, hardcoverID string) error {
	query := `
		UPDATE editions
		SET hardcover_id = $1
		WHERE id = $2`

	result, err := r.db.Exec(ctx, query, hardcoverID, editionID)
	if err != nil {
		return fmt.Errorf("failed to update edition hardcover id: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("edition", editionID.String())
	}

	return nil
}

// bookScanDest holds the destination pointers for scanning a Book row.
type bookScanDest struct {
	book domain.Book
}

// destinations returns the slice of pointers for Scan operations.
func (d *bookScanDest) destinations() []interface{} {
	return []interface{}{
		&d.book.ID, &d.book.Title,
		&d.book.HardcoverID, &d.book.HardcoverSlug,
		&d.book.CreatedAt, &d.book.UpdatedAt,
	}
}

// scanBook scans a single row into a Book.
func scanBook(row pgx.Row) (*domain.Book, error) {
	var dest bookScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.book, nil
}

// scanBookFromRows scans the current row from pgx.Rows into a Book.
func scanBookFromRows(rows pgx.Rows) (*domain.Book, error) {
	var dest bookScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.book, nil
}
