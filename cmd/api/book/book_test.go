package book_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bookshelf-service/cmd/api/book"
	bookmock "github.com/bookshelf-service/cmd/api/book/mocks"
	"github.com/bookshelf-service/cmd/api/notifications"
	"github.com/google/uuid"
	"github.com/matryer/is"
	gomock "go.uber.org/mock/gomock"
)

var ctx context.Context = context.Background()

var ntfy *notifications.Ntfy
var notificationsTimeout = 1 * time.Second

func TestMain(m *testing.M) {
	ntfy = notifications.NewNtfy(false, "", &http.Client{})
	m.Run()
}

func TestAverageOf(t *testing.T) {

	t.Run("computes the mean rounded to one decimal place", func(t *testing.T) {
		is := is.New(t)

		cases := []struct {
			grades []int
			want   float64
		}{
			{[]int{4}, 4.0},
			{[]int{4, 2}, 3.0},
			{[]int{5, 4}, 4.5},
			{[]int{1, 2, 2}, 1.7},
			{[]int{5, 5, 5, 5}, 5.0},
			{[]int{}, 0},
		}

		for _, c := range cases {
			ratings := []book.Rating{}
			for _, g := range c.grades {
				ratings = append(ratings, book.Rating{UserID: uuid.New(), Grade: g})
			}
			is.Equal(book.AverageOf(ratings), c.want)
		}
	})

	t.Run("single grades map to themselves", func(t *testing.T) {
		is := is.New(t)

		for grade := 1; grade <= 5; grade++ {
			ratings := []book.Rating{{UserID: uuid.New(), Grade: grade}}
			is.Equal(book.AverageOf(ratings), float64(grade))
		}
	})
}

func TestCreateBook(t *testing.T) {

	t.Run("creates a book without errors", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		ownerID := uuid.New()
		raterID := uuid.New()
		reqBook := book.CreateBookRequest{
			OwnerID:       ownerID,
			Title:         "Service tester book",
			Author:        "Tester",
			Year:          1998,
			Genre:         "testing",
			ImageURL:      "http://localhost:8080/images/tester_123.jpg",
			Ratings:       []book.Rating{{UserID: raterID, Grade: 4}},
			AverageRating: 4,
		}

		mockRepo.EXPECT().CreateBook(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, b book.Book) (book.Book, error) {
			is.True(b.ID != uuid.Nil)
			is.Equal(b.UserID, ownerID)
			is.Equal(b.Title, reqBook.Title)
			is.Equal(b.Author, reqBook.Author)
			is.Equal(b.Year, reqBook.Year)
			is.Equal(b.Genre, reqBook.Genre)
			is.Equal(b.ImageURL, reqBook.ImageURL)
			is.Equal(b.Ratings, reqBook.Ratings)
			is.Equal(b.AverageRating, 4.0)
			is.True(b.CreatedAt.Compare(time.Now().Round(time.Millisecond)) <= 0)
			is.True(b.UpdatedAt.Compare(time.Now().Round(time.Millisecond)) <= 0)
			return b, nil
		})

		createdBook, err := mS.CreateBook(ctx, reqBook)
		is.NoErr(err)
		is.True(createdBook.ID != uuid.Nil)
		is.Equal(createdBook.UserID, ownerID)
		is.Equal(createdBook.AverageRating, 4.0)
	})

	t.Run("rounds the seed average to one decimal place", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		reqBook := book.CreateBookRequest{
			OwnerID:       uuid.New(),
			Title:         "Rounded book",
			Ratings:       []book.Rating{{UserID: uuid.New(), Grade: 4}},
			AverageRating: 4.04,
		}

		mockRepo.EXPECT().CreateBook(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, b book.Book) (book.Book, error) {
			is.Equal(b.AverageRating, 4.0)
			return b, nil
		})

		createdBook, err := mS.CreateBook(ctx, reqBook)
		is.NoErr(err)
		is.Equal(createdBook.AverageRating, 4.0)
	})
}

func TestAddRating(t *testing.T) {

	t.Run("appends a rating and recomputes the average", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		bookID := uuid.New()
		firstRater := uuid.New()
		secondRater := uuid.New()
		storedBook := book.Book{
			ID:            bookID,
			UserID:        uuid.New(),
			Title:         "Rated book",
			Ratings:       []book.Rating{{UserID: firstRater, Grade: 4}},
			AverageRating: 4,
		}

		newRating := book.Rating{UserID: secondRater, Grade: 2}

		mockRepo.EXPECT().GetBookByID(gomock.Any(), bookID).Return(storedBook, nil)
		mockRepo.EXPECT().AddRating(gomock.Any(), bookID, newRating, 3.0).DoAndReturn(
			func(ctx context.Context, id uuid.UUID, r book.Rating, newAverage float64) (book.Book, error) {
				updated := storedBook
				updated.Ratings = append([]book.Rating{}, storedBook.Ratings...)
				updated.Ratings = append(updated.Ratings, r)
				updated.AverageRating = newAverage
				return updated, nil
			})

		updatedBook, err := mS.AddRating(ctx, bookID, newRating)
		is.NoErr(err)
		is.Equal(updatedBook.AverageRating, 3.0)
		is.Equal(len(updatedBook.Ratings), 2)
		is.Equal(updatedBook.Ratings[1], newRating)
	})

	t.Run("rejects out of range grades before touching the store", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		for _, grade := range []int{0, 6, -1} {
			_, err := mS.AddRating(ctx, uuid.New(), book.Rating{UserID: uuid.New(), Grade: grade})
			is.True(errors.Is(err, book.ErrResponseInvalidGrade))
		}
	})

	t.Run("rejects a second rating from the same user", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		bookID := uuid.New()
		rater := uuid.New()
		storedBook := book.Book{
			ID:            bookID,
			Ratings:       []book.Rating{{UserID: rater, Grade: 4}},
			AverageRating: 4,
		}

		mockRepo.EXPECT().GetBookByID(gomock.Any(), bookID).Return(storedBook, nil)

		_, err := mS.AddRating(ctx, bookID, book.Rating{UserID: rater, Grade: 5})
		is.True(errors.Is(err, book.ErrResponseAlreadyRated))
	})

	t.Run("passes the not found error through", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		bookID := uuid.New()
		mockRepo.EXPECT().GetBookByID(gomock.Any(), bookID).Return(book.Book{}, fmt.Errorf("searching by ID: %w", book.ErrResponseBookNotFound))

		_, err := mS.AddRating(ctx, bookID, book.Rating{UserID: uuid.New(), Grade: 3})
		is.True(errors.Is(err, book.ErrResponseBookNotFound))
	})
}

func TestUpdateBook(t *testing.T) {

	t.Run("updates a book and removes the replaced image after the write", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		ownerID := uuid.New()
		bookID := uuid.New()
		storedBook := book.Book{
			ID:            bookID,
			UserID:        ownerID,
			Title:         "Old title",
			ImageURL:      "http://localhost:8080/images/old_1.jpg",
			Ratings:       []book.Rating{{UserID: uuid.New(), Grade: 5}},
			AverageRating: 5,
		}

		reqBook := book.UpdateBookRequest{
			ID:          bookID,
			CallerID:    ownerID,
			Title:       "New title",
			Author:      "New author",
			Year:        2001,
			Genre:       "novel",
			NewImageURL: "http://localhost:8080/images/new_2.jpg",
		}

		mockRepo.EXPECT().GetBookByID(gomock.Any(), bookID).Return(storedBook, nil)
		updateCall := mockRepo.EXPECT().UpdateBook(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, b book.Book) (book.Book, error) {
			is.Equal(b.ID, bookID)
			is.Equal(b.UserID, ownerID)
			is.Equal(b.Title, reqBook.Title)
			is.Equal(b.Author, reqBook.Author)
			is.Equal(b.Year, reqBook.Year)
			is.Equal(b.Genre, reqBook.Genre)
			is.Equal(b.ImageURL, reqBook.NewImageURL)
			is.Equal(b.Ratings, storedBook.Ratings)
			is.Equal(b.AverageRating, storedBook.AverageRating)
			return b, nil
		})
		// The old asset goes away only once the new document is stored.
		removeCall := mockImages.EXPECT().Remove(storedBook.ImageURL).Return(nil)
		gomock.InOrder(updateCall, removeCall)

		updatedBook, err := mS.UpdateBook(ctx, reqBook)
		is.NoErr(err)
		is.Equal(updatedBook.Title, reqBook.Title)
		is.Equal(updatedBook.ImageURL, reqBook.NewImageURL)
	})

	t.Run("keeps the image when none was uploaded", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		ownerID := uuid.New()
		bookID := uuid.New()
		storedBook := book.Book{
			ID:       bookID,
			UserID:   ownerID,
			ImageURL: "http://localhost:8080/images/kept_3.jpg",
		}

		mockRepo.EXPECT().GetBookByID(gomock.Any(), bookID).Return(storedBook, nil)
		mockRepo.EXPECT().UpdateBook(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, b book.Book) (book.Book, error) {
			is.Equal(b.ImageURL, storedBook.ImageURL)
			return b, nil
		})

		_, err := mS.UpdateBook(ctx, book.UpdateBookRequest{ID: bookID, CallerID: ownerID, Title: "Same image"})
		is.NoErr(err)
	})

	t.Run("rejects a caller that is not the owner", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		bookID := uuid.New()
		storedBook := book.Book{ID: bookID, UserID: uuid.New(), Title: "Untouched"}

		mockRepo.EXPECT().GetBookByID(gomock.Any(), bookID).Return(storedBook, nil)

		_, err := mS.UpdateBook(ctx, book.UpdateBookRequest{ID: bookID, CallerID: uuid.New(), Title: "Hijacked"})
		is.True(errors.Is(err, book.ErrResponseNotBookOwner))
	})
}

func TestDeleteBook(t *testing.T) {

	t.Run("deletes the asset first, then the record", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		ownerID := uuid.New()
		bookID := uuid.New()
		storedBook := book.Book{ID: bookID, UserID: ownerID, ImageURL: "http://localhost:8080/images/gone_4.jpg"}

		getCall := mockRepo.EXPECT().GetBookByID(gomock.Any(), bookID).Return(storedBook, nil)
		removeCall := mockImages.EXPECT().Remove(storedBook.ImageURL).Return(nil)
		deleteCall := mockRepo.EXPECT().DeleteBook(gomock.Any(), bookID).Return(nil)
		gomock.InOrder(getCall, removeCall, deleteCall)

		err := mS.DeleteBook(ctx, bookID, ownerID)
		is.NoErr(err)
	})

	t.Run("a failed asset removal never blocks the record deletion", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		ownerID := uuid.New()
		bookID := uuid.New()
		storedBook := book.Book{ID: bookID, UserID: ownerID, ImageURL: "http://localhost:8080/images/stuck_5.jpg"}

		mockRepo.EXPECT().GetBookByID(gomock.Any(), bookID).Return(storedBook, nil)
		mockImages.EXPECT().Remove(storedBook.ImageURL).Return(errors.New("disk says no"))
		mockRepo.EXPECT().DeleteBook(gomock.Any(), bookID).Return(nil)

		err := mS.DeleteBook(ctx, bookID, ownerID)
		is.NoErr(err)
	})

	t.Run("rejects a caller that is not the owner", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		bookID := uuid.New()
		mockRepo.EXPECT().GetBookByID(gomock.Any(), bookID).Return(book.Book{ID: bookID, UserID: uuid.New()}, nil)

		err := mS.DeleteBook(ctx, bookID, uuid.New())
		is.True(errors.Is(err, book.ErrResponseNotBookOwner))
	})
}

func TestGetBook(t *testing.T) {

	t.Run("Gets a book by ID without errors", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		bookID := uuid.New()
		storedBook := book.Book{ID: bookID, Title: "Found book"}

		mockRepo.EXPECT().GetBookByID(gomock.Any(), bookID).Return(storedBook, nil)

		returnedBook, err := mS.GetBook(ctx, bookID)
		is.NoErr(err)
		is.Equal(returnedBook, storedBook)
	})
}

func TestListBestRated(t *testing.T) {

	t.Run("passes the limit to the repository", func(t *testing.T) {
		is := is.New(t)
		ctrl := gomock.NewController(t)
		mockRepo := bookmock.NewMockRepository(ctrl)
		mockImages := bookmock.NewMockImageStore(ctrl)
		mS := book.NewService(mockRepo, mockImages, ntfy, notificationsTimeout)

		best := []book.Book{{Title: "first", AverageRating: 5}, {Title: "second", AverageRating: 4.5}}
		mockRepo.EXPECT().ListBestRated(gomock.Any(), 3).Return(best, nil)

		books, err := mS.ListBestRated(ctx, 3)
		is.NoErr(err)
		is.Equal(books, best)
	})
}
