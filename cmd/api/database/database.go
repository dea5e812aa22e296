package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log"

	"github.com/bookshelf-service/cmd/api/book"
	"github.com/bookshelf-service/cmd/api/user"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/lib/pq"

	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const uniqueViolation = pq.ErrorCode("23505")

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	exc *Exectuor
}

type Exectuor struct {
	DBTX
}

func NewStore(db *sql.DB) *Store {
	CurrentStore := &Store{
		db:  db,
		exc: NewExc(db),
	}
	return CurrentStore
}

func NewExc(dbtx DBTX) *Exectuor {
	return &Exectuor{DBTX: dbtx}
}

func (store *Store) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Store, driver.Tx, error) {
	tx, err := store.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}

	txRepo := NewStore(store.db)
	txRepo.exc = NewExc(tx)
	return txRepo, tx, nil
}

/* Connects to the database trought a connection string and returns a pointer to a valid DB object (*sql.DB). */
func ConnectDb(connStr string) (*sql.DB, error) {

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to db, openning: %w", err)
	}

	err = sqlDB.Ping()
	if err != nil {
		return nil, fmt.Errorf("connecting to db, pingging: %w", err)
	}

	log.Println("Successfully connected!")
	return sqlDB, nil
}

func MigrationUp(store *Store, path string) error {
	driver, err := postgres.WithInstance(store.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", path),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	err = m.Up()
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}
	return nil
}

/* Stores the book and its seed ratings into the database inside one
transaction, checks and returns it if succeed. */
func (store *Store) CreateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	txStore, tx, err := store.BeginTx(ctx, nil)
	if err != nil {
		return book.Book{}, fmt.Errorf("creating book on db: %w", err)
	}
	defer tx.Rollback()

	sqlStatement := `
	INSERT INTO books (id, user_id, title, author, year, genre, image_url, average_rating, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id, user_id, title, author, year, genre, image_url, average_rating, created_at, updated_at`
	createdRow := txStore.exc.QueryRowContext(ctx, sqlStatement,
		bookEntry.ID, bookEntry.UserID, bookEntry.Title, bookEntry.Author,
		bookEntry.Year, bookEntry.Genre, bookEntry.ImageURL, bookEntry.AverageRating,
		bookEntry.CreatedAt, bookEntry.UpdatedAt)

	bookToReturn, err := scanBook(createdRow)
	if err != nil {
		return book.Book{}, fmt.Errorf("creating book on db: %w", err)
	}

	for _, r := range bookEntry.Ratings {
		err = txStore.insertRating(ctx, bookEntry.ID, r)
		if err != nil {
			return book.Book{}, fmt.Errorf("creating book on db: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return book.Book{}, fmt.Errorf("creating book on db: %w", err)
	}

	bookToReturn.Ratings = bookEntry.Ratings
	return bookToReturn, nil
}

/* Searches for the book with that specific ID, embedded ratings included. */
func (store *Store) GetBookByID(ctx context.Context, id uuid.UUID) (book.Book, error) {
	sqlStatement := `
	SELECT id, user_id, title, author, year, genre, image_url, average_rating, created_at, updated_at
	FROM books
	WHERE id = $1`
	foundRow := store.exc.QueryRowContext(ctx, sqlStatement, id)

	bookToReturn, err := scanBook(foundRow)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return book.Book{}, fmt.Errorf("searching by ID: %w", book.ErrResponseBookNotFound)
		default:
			return book.Book{}, fmt.Errorf("searching by ID: %w", err)
		}
	}

	bookToReturn.Ratings, err = store.listRatings(ctx, id)
	if err != nil {
		return book.Book{}, fmt.Errorf("searching by ID: %w", err)
	}

	return bookToReturn, nil
}

func (store *Store) ListBooks(ctx context.Context) ([]book.Book, error) {
	sqlStatement := `
	SELECT id, user_id, title, author, year, genre, image_url, average_rating, created_at, updated_at
	FROM books`
	return store.queryBooks(ctx, sqlStatement)
}

/* Returns at most limit books with the highest average rating. Ties come
back in whatever order the database serves them. */
func (store *Store) ListBestRated(ctx context.Context, limit int) ([]book.Book, error) {
	sqlStatement := `
	SELECT id, user_id, title, author, year, genre, image_url, average_rating, created_at, updated_at
	FROM books
	ORDER BY average_rating DESC
	LIMIT $1`
	return store.queryBooks(ctx, sqlStatement, limit)
}

func (store *Store) queryBooks(ctx context.Context, sqlStatement string, args ...any) ([]book.Book, error) {
	rows, err := store.exc.QueryContext(ctx, sqlStatement, args...)
	if err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}
	defer rows.Close()

	books := []book.Book{}
	for rows.Next() {
		bookToReturn, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("listing books from db: %w", err)
		}
		books = append(books, bookToReturn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing books from db: %w", err)
	}

	for i := range books {
		books[i].Ratings, err = store.listRatings(ctx, books[i].ID)
		if err != nil {
			return nil, fmt.Errorf("listing books from db: %w", err)
		}
	}

	return books, nil
}

/* Updates the book fields on database, ratings and average excluded. */
func (store *Store) UpdateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	sqlStatement := `
	UPDATE books
	SET title = $2, author = $3, year = $4, genre = $5, image_url = $6, updated_at = $7
	WHERE id = $1
	RETURNING id, user_id, title, author, year, genre, image_url, average_rating, created_at, updated_at`
	updatedRow := store.exc.QueryRowContext(ctx, sqlStatement,
		bookEntry.ID, bookEntry.Title, bookEntry.Author, bookEntry.Year,
		bookEntry.Genre, bookEntry.ImageURL, bookEntry.UpdatedAt)

	bookToReturn, err := scanBook(updatedRow)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return book.Book{}, fmt.Errorf("updating on db: %w", book.ErrResponseBookNotFound)
		default:
			return book.Book{}, fmt.Errorf("updating on db: %w", err)
		}
	}

	bookToReturn.Ratings, err = store.listRatings(ctx, bookEntry.ID)
	if err != nil {
		return book.Book{}, fmt.Errorf("updating on db: %w", err)
	}

	return bookToReturn, nil
}

/* Removes the book row. The ratings rows go with it through the cascade. */
func (store *Store) DeleteBook(ctx context.Context, id uuid.UUID) error {
	sqlStatement := `
	DELETE FROM books
	WHERE id = $1`
	result, err := store.exc.ExecContext(ctx, sqlStatement, id)
	if err != nil {
		return fmt.Errorf("deleting on db: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting on db: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("deleting on db: %w", book.ErrResponseBookNotFound)
	}

	return nil
}

/* Appends the rating and writes the new average inside one transaction.
The unique (book_id, user_id) index is the last line of defense against two
concurrent submissions from the same user racing past the service check. */
func (store *Store) AddRating(ctx context.Context, bookID uuid.UUID, rating book.Rating, newAverage float64) (book.Book, error) {
	txStore, tx, err := store.BeginTx(ctx, nil)
	if err != nil {
		return book.Book{}, fmt.Errorf("adding rating on db: %w", err)
	}
	defer tx.Rollback()

	err = txStore.insertRating(ctx, bookID, rating)
	if err != nil {
		return book.Book{}, fmt.Errorf("adding rating on db: %w", err)
	}

	sqlStatement := `
	UPDATE books
	SET average_rating = $2, updated_at = NOW()
	WHERE id = $1`
	_, err = txStore.exc.ExecContext(ctx, sqlStatement, bookID, newAverage)
	if err != nil {
		return book.Book{}, fmt.Errorf("adding rating on db: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return book.Book{}, fmt.Errorf("adding rating on db: %w", err)
	}

	return store.GetBookByID(ctx, bookID)
}

func (store *Store) insertRating(ctx context.Context, bookID uuid.UUID, rating book.Rating) error {
	sqlStatement := `
	INSERT INTO ratings (book_id, user_id, grade)
	VALUES ($1, $2, $3)`
	_, err := store.exc.ExecContext(ctx, sqlStatement, bookID, rating.UserID, rating.Grade)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return book.ErrResponseAlreadyRated
		}
		return err
	}
	return nil
}

/* Returns the ratings of a book in submission order. */
func (store *Store) listRatings(ctx context.Context, bookID uuid.UUID) ([]book.Rating, error) {
	sqlStatement := `
	SELECT user_id, grade
	FROM ratings
	WHERE book_id = $1
	ORDER BY position`
	rows, err := store.exc.QueryContext(ctx, sqlStatement, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ratings := []book.Rating{}
	for rows.Next() {
		var r book.Rating
		err := rows.Scan(&r.UserID, &r.Grade)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, r)
	}

	return ratings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (book.Book, error) {
	var bookToReturn book.Book
	err := row.Scan(&bookToReturn.ID, &bookToReturn.UserID, &bookToReturn.Title,
		&bookToReturn.Author, &bookToReturn.Year, &bookToReturn.Genre,
		&bookToReturn.ImageURL, &bookToReturn.AverageRating,
		&bookToReturn.CreatedAt, &bookToReturn.UpdatedAt)
	return bookToReturn, err
}

/* Stores the user into the database, checks and returns it if succeed. */
func (store *Store) CreateUser(ctx context.Context, userEntry user.User) (user.User, error) {
	sqlStatement := `
	INSERT INTO users (id, email, password_hash, created_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id, email, password_hash, created_at`
	createdRow := store.exc.QueryRowContext(ctx, sqlStatement,
		userEntry.ID, userEntry.Email, userEntry.PasswordHash, userEntry.CreatedAt)

	var userToReturn user.User
	err := createdRow.Scan(&userToReturn.ID, &userToReturn.Email,
		&userToReturn.PasswordHash, &userToReturn.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return user.User{}, fmt.Errorf("creating user on db: %w", user.ErrResponseEmailAlreadyTaken)
		}
		return user.User{}, fmt.Errorf("creating user on db: %w", err)
	}

	return userToReturn, nil
}

/* Searches for the user with that specific email. */
func (store *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	sqlStatement := `
	SELECT id, email, password_hash, created_at
	FROM users
	WHERE email = $1`
	foundRow := store.exc.QueryRowContext(ctx, sqlStatement, email)

	var userToReturn user.User
	err := foundRow.Scan(&userToReturn.ID, &userToReturn.Email,
		&userToReturn.PasswordHash, &userToReturn.CreatedAt)
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return user.User{}, fmt.Errorf("searching by email: %w", user.ErrResponseUserNotFound)
		default:
			return user.User{}, fmt.Errorf("searching by email: %w", err)
		}
	}

	return userToReturn, nil
}
