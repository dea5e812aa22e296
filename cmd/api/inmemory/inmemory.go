package inmemory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bookshelf-service/cmd/api/book"
	"github.com/bookshelf-service/cmd/api/user"
	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
)

/* InMemoryStore keeps books and users inside a go-memdb database. It backs
the tests and local runs with the same repository contract as the postgres
store. */
type InMemoryStore struct {
	db *memdb.MemDB
}

func NewInMemoryStore() (*InMemoryStore, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"book": {
				Name: "book",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			"user": {
				Name: "user",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"email": {
						Name:    "email",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Email"},
					},
				},
			},
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-memory database: %w", err)
	}
	return &InMemoryStore{db: db}, nil
}

/* memdb indexes on string fields, so the documents are stored with the uuids
flattened to strings. The ratings ride along inside the book document, the way
a document store would embed them. */
type AdaptedBook struct {
	ID            string
	UserID        string
	Title         string
	Author        string
	Year          int
	Genre         string
	ImageURL      string
	Ratings       []book.Rating
	AverageRating float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func adaptBookIdToString(bookEntry book.Book) AdaptedBook {
	return AdaptedBook{
		ID:            bookEntry.ID.String(),
		UserID:        bookEntry.UserID.String(),
		Title:         bookEntry.Title,
		Author:        bookEntry.Author,
		Year:          bookEntry.Year,
		Genre:         bookEntry.Genre,
		ImageURL:      bookEntry.ImageURL,
		Ratings:       bookEntry.Ratings,
		AverageRating: bookEntry.AverageRating,
		CreatedAt:     bookEntry.CreatedAt,
		UpdatedAt:     bookEntry.UpdatedAt,
	}
}

func adaptBookIdToUUID(adptBook AdaptedBook) book.Book {
	return book.Book{
		ID:            uuid.MustParse(adptBook.ID),
		UserID:        uuid.MustParse(adptBook.UserID),
		Title:         adptBook.Title,
		Author:        adptBook.Author,
		Year:          adptBook.Year,
		Genre:         adptBook.Genre,
		ImageURL:      adptBook.ImageURL,
		Ratings:       adptBook.Ratings,
		AverageRating: adptBook.AverageRating,
		CreatedAt:     adptBook.CreatedAt,
		UpdatedAt:     adptBook.UpdatedAt,
	}
}

type AdaptedUser struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

func adaptUserIdToString(userEntry user.User) AdaptedUser {
	return AdaptedUser{
		ID:           userEntry.ID.String(),
		Email:        userEntry.Email,
		PasswordHash: userEntry.PasswordHash,
		CreatedAt:    userEntry.CreatedAt,
	}
}

func adaptUserIdToUUID(adptUser AdaptedUser) user.User {
	return user.User{
		ID:           uuid.MustParse(adptUser.ID),
		Email:        adptUser.Email,
		PasswordHash: adptUser.PasswordHash,
		CreatedAt:    adptUser.CreatedAt,
	}
}

func (store *InMemoryStore) CreateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	err := txn.Insert("book", adaptBookIdToString(bookEntry))
	if err != nil {
		return book.Book{}, fmt.Errorf("creating book on in-memory db: %w", err)
	}

	txn.Commit()
	return bookEntry, nil
}

func (store *InMemoryStore) GetBookByID(ctx context.Context, id uuid.UUID) (book.Book, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	return getBook(txn, id)
}

func getBook(txn *memdb.Txn, id uuid.UUID) (book.Book, error) {
	raw, err := txn.First("book", "id", id.String())
	if err != nil {
		return book.Book{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return book.Book{}, fmt.Errorf("searching by ID: %w", book.ErrResponseBookNotFound)
	}

	return adaptBookIdToUUID(raw.(AdaptedBook)), nil
}

func (store *InMemoryStore) ListBooks(ctx context.Context) ([]book.Book, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get("book", "id")
	if err != nil {
		return []book.Book{}, fmt.Errorf("listing books from in-memory db: %w", err)
	}

	books := []book.Book{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		books = append(books, adaptBookIdToUUID(obj.(AdaptedBook)))
	}

	return books, nil
}

/* Returns at most limit books, best average first. sort.Slice is not stable,
ties come back in no particular order. */
func (store *InMemoryStore) ListBestRated(ctx context.Context, limit int) ([]book.Book, error) {
	books, err := store.ListBooks(ctx)
	if err != nil {
		return []book.Book{}, err
	}

	sort.Slice(books, func(i, j int) bool {
		return books[i].AverageRating > books[j].AverageRating
	})

	if len(books) > limit {
		books = books[:limit]
	}

	return books, nil
}

/* Replaces the stored fields of the book, ratings and average kept as they
are on the stored document. */
func (store *InMemoryStore) UpdateBook(ctx context.Context, bookEntry book.Book) (book.Book, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	currentBook, err := getBook(txn, bookEntry.ID)
	if err != nil {
		return book.Book{}, fmt.Errorf("updating on in-memory db: %w", err)
	}

	bookEntry.Ratings = currentBook.Ratings
	bookEntry.AverageRating = currentBook.AverageRating
	bookEntry.CreatedAt = currentBook.CreatedAt

	err = txn.Insert("book", adaptBookIdToString(bookEntry))
	if err != nil {
		return book.Book{}, fmt.Errorf("updating on in-memory db: %w", err)
	}

	txn.Commit()
	return bookEntry, nil
}

func (store *InMemoryStore) DeleteBook(ctx context.Context, id uuid.UUID) error {
	txn := store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First("book", "id", id.String())
	if err != nil {
		return fmt.Errorf("deleting on in-memory db: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("deleting on in-memory db: %w", book.ErrResponseBookNotFound)
	}

	err = txn.Delete("book", raw)
	if err != nil {
		return fmt.Errorf("deleting on in-memory db: %w", err)
	}

	txn.Commit()
	return nil
}

/* Appends the rating and writes the new average in one write transaction.
The duplicate check is repeated here so the store never holds two ratings of
the same user even when callers race. */
func (store *InMemoryStore) AddRating(ctx context.Context, bookID uuid.UUID, rating book.Rating, newAverage float64) (book.Book, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	currentBook, err := getBook(txn, bookID)
	if err != nil {
		return book.Book{}, fmt.Errorf("adding rating on in-memory db: %w", err)
	}

	if currentBook.RatedBy(rating.UserID) {
		return book.Book{}, fmt.Errorf("adding rating on in-memory db: %w", book.ErrResponseAlreadyRated)
	}

	// The stored document is shared until commit, so the slice is copied
	// instead of appended in place.
	ratings := make([]book.Rating, 0, len(currentBook.Ratings)+1)
	ratings = append(ratings, currentBook.Ratings...)
	ratings = append(ratings, rating)

	currentBook.Ratings = ratings
	currentBook.AverageRating = newAverage
	currentBook.UpdatedAt = time.Now().UTC().Round(time.Millisecond)

	err = txn.Insert("book", adaptBookIdToString(currentBook))
	if err != nil {
		return book.Book{}, fmt.Errorf("adding rating on in-memory db: %w", err)
	}

	txn.Commit()
	return currentBook, nil
}

/* Stores the user, enforcing the unique email. */
func (store *InMemoryStore) CreateUser(ctx context.Context, userEntry user.User) (user.User, error) {
	txn := store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First("user", "email", userEntry.Email)
	if err != nil {
		return user.User{}, fmt.Errorf("creating user on in-memory db: %w", err)
	}
	if raw != nil {
		return user.User{}, fmt.Errorf("creating user on in-memory db: %w", user.ErrResponseEmailAlreadyTaken)
	}

	err = txn.Insert("user", adaptUserIdToString(userEntry))
	if err != nil {
		return user.User{}, fmt.Errorf("creating user on in-memory db: %w", err)
	}

	txn.Commit()
	return userEntry, nil
}

func (store *InMemoryStore) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First("user", "email", email)
	if err != nil {
		return user.User{}, fmt.Errorf("searching by email: %w", err)
	}
	if raw == nil {
		return user.User{}, fmt.Errorf("searching by email: %w", user.ErrResponseUserNotFound)
	}

	return adaptUserIdToUUID(raw.(AdaptedUser)), nil
}
