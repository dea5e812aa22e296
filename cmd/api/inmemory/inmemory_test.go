package inmemory_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bookshelf-service/cmd/api/book"
	"github.com/bookshelf-service/cmd/api/inmemory"
	"github.com/bookshelf-service/cmd/api/notifications"
	"github.com/bookshelf-service/cmd/api/user"
	"github.com/google/uuid"
	"github.com/matryer/is"
)

var ctx context.Context = context.Background()

/* The in-memory store never holds image assets, services under test get this
no-op in their place. */
type noopImages struct{}

func (noopImages) Remove(imageURL string) error { return nil }

func newTestBook() book.Book {
	return book.Book{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Title:         "In-memory tester book",
		Author:        "Tester",
		Year:          1998,
		Genre:         "testing",
		ImageURL:      "http://localhost:8080/images/tester_1.jpg",
		Ratings:       []book.Rating{},
		AverageRating: 0,
		CreatedAt:     time.Now().UTC().Round(time.Millisecond),
		UpdatedAt:     time.Now().UTC().Round(time.Millisecond),
	}
}

func TestBookStore(t *testing.T) {

	t.Run("creates and gets back a book", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		newBook := newTestBook()
		createdBook, err := store.CreateBook(ctx, newBook)
		is.NoErr(err)
		is.Equal(createdBook, newBook)

		storedBook, err := store.GetBookByID(ctx, newBook.ID)
		is.NoErr(err)
		is.Equal(storedBook, newBook)
	})

	t.Run("an unknown ID is not found", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		_, err = store.GetBookByID(ctx, uuid.New())
		is.True(errors.Is(err, book.ErrResponseBookNotFound))
	})

	t.Run("lists every stored book", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		for i := 0; i < 3; i++ {
			_, err := store.CreateBook(ctx, newTestBook())
			is.NoErr(err)
		}

		books, err := store.ListBooks(ctx)
		is.NoErr(err)
		is.Equal(len(books), 3)
	})

	t.Run("updates fields but never ratings or the average", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		newBook := newTestBook()
		newBook.Ratings = []book.Rating{{UserID: uuid.New(), Grade: 5}}
		newBook.AverageRating = 5
		_, err = store.CreateBook(ctx, newBook)
		is.NoErr(err)

		changed := newBook
		changed.Title = "Renamed"
		changed.Ratings = nil
		changed.AverageRating = 0

		updatedBook, err := store.UpdateBook(ctx, changed)
		is.NoErr(err)
		is.Equal(updatedBook.Title, "Renamed")
		is.Equal(updatedBook.Ratings, newBook.Ratings)
		is.Equal(updatedBook.AverageRating, 5.0)
		is.Equal(updatedBook.CreatedAt, newBook.CreatedAt)
	})

	t.Run("deletes a book", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		newBook := newTestBook()
		_, err = store.CreateBook(ctx, newBook)
		is.NoErr(err)

		err = store.DeleteBook(ctx, newBook.ID)
		is.NoErr(err)

		_, err = store.GetBookByID(ctx, newBook.ID)
		is.True(errors.Is(err, book.ErrResponseBookNotFound))

		err = store.DeleteBook(ctx, newBook.ID)
		is.True(errors.Is(err, book.ErrResponseBookNotFound))
	})

	t.Run("ranks the best rated and honors the limit", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		for _, average := range []float64{2.5, 4.7, 1.0, 3.9} {
			b := newTestBook()
			b.AverageRating = average
			_, err := store.CreateBook(ctx, b)
			is.NoErr(err)
		}

		best, err := store.ListBestRated(ctx, 3)
		is.NoErr(err)
		is.Equal(len(best), 3)
		is.Equal(best[0].AverageRating, 4.7)
		is.Equal(best[1].AverageRating, 3.9)
		is.Equal(best[2].AverageRating, 2.5)
	})
}

func TestAddRating(t *testing.T) {

	t.Run("appends the rating and writes the given average", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		newBook := newTestBook()
		firstRater := uuid.New()
		newBook.Ratings = []book.Rating{{UserID: firstRater, Grade: 4}}
		newBook.AverageRating = 4
		_, err = store.CreateBook(ctx, newBook)
		is.NoErr(err)

		secondRating := book.Rating{UserID: uuid.New(), Grade: 2}
		updatedBook, err := store.AddRating(ctx, newBook.ID, secondRating, 3.0)
		is.NoErr(err)
		is.Equal(len(updatedBook.Ratings), 2)
		is.Equal(updatedBook.Ratings[0].UserID, firstRater)
		is.Equal(updatedBook.Ratings[1], secondRating)
		is.Equal(updatedBook.AverageRating, 3.0)
	})

	t.Run("refuses a second rating of the same user", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		newBook := newTestBook()
		rater := uuid.New()
		newBook.Ratings = []book.Rating{{UserID: rater, Grade: 4}}
		_, err = store.CreateBook(ctx, newBook)
		is.NoErr(err)

		_, err = store.AddRating(ctx, newBook.ID, book.Rating{UserID: rater, Grade: 1}, 2.5)
		is.True(errors.Is(err, book.ErrResponseAlreadyRated))

		storedBook, err := store.GetBookByID(ctx, newBook.ID)
		is.NoErr(err)
		is.Equal(len(storedBook.Ratings), 1)
	})
}

func TestUserStore(t *testing.T) {

	t.Run("creates a user and finds it by email", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		newUser := user.User{
			ID:           uuid.New(),
			Email:        "reader@example.com",
			PasswordHash: "$2a$10$fakefakefakefakefakefake",
			CreatedAt:    time.Now().UTC().Round(time.Millisecond),
		}

		createdUser, err := store.CreateUser(ctx, newUser)
		is.NoErr(err)
		is.Equal(createdUser, newUser)

		storedUser, err := store.GetUserByEmail(ctx, newUser.Email)
		is.NoErr(err)
		is.Equal(storedUser, newUser)
	})

	t.Run("refuses a second account on the same email", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		first := user.User{ID: uuid.New(), Email: "reader@example.com"}
		_, err = store.CreateUser(ctx, first)
		is.NoErr(err)

		second := user.User{ID: uuid.New(), Email: "reader@example.com"}
		_, err = store.CreateUser(ctx, second)
		is.True(errors.Is(err, user.ErrResponseEmailAlreadyTaken))
	})

	t.Run("an unknown email is not found", func(t *testing.T) {
		is := is.New(t)
		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		_, err = store.GetUserByEmail(ctx, "ghost@example.com")
		is.True(errors.Is(err, user.ErrResponseUserNotFound))
	})
}

/* The whole rating flow through the service and the in-memory store: a book
seeded with one grade 4 rating averages 4.0, and a grade 2 from another reader
moves the average to 3.0. */
func TestRatingFlow(t *testing.T) {
	is := is.New(t)

	store, err := inmemory.NewInMemoryStore()
	is.NoErr(err)

	ntfy := notifications.NewNtfy(false, "", &http.Client{})
	bookService := book.NewService(store, noopImages{}, ntfy, time.Second)

	ownerID := uuid.New()
	firstRater := uuid.New()

	createdBook, err := bookService.CreateBook(ctx, book.CreateBookRequest{
		OwnerID:       ownerID,
		Title:         "Seeded book",
		Author:        "Tester",
		Year:          2020,
		Genre:         "testing",
		ImageURL:      "http://localhost:8080/images/seeded_1.jpg",
		Ratings:       []book.Rating{{UserID: firstRater, Grade: 4}},
		AverageRating: 4,
	})
	is.NoErr(err)
	is.Equal(createdBook.AverageRating, 4.0)

	updatedBook, err := bookService.AddRating(ctx, createdBook.ID, book.Rating{UserID: uuid.New(), Grade: 2})
	is.NoErr(err)
	is.Equal(updatedBook.AverageRating, 3.0)
	is.Equal(len(updatedBook.Ratings), 2)

	storedBook, err := bookService.GetBook(ctx, createdBook.ID)
	is.NoErr(err)
	is.Equal(storedBook.AverageRating, 3.0)
}
