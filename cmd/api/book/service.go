package book

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/bookshelf-service/cmd/api/notifications"
	"github.com/google/uuid"
)

type ServiceAPI interface {
	CreateBook(ctx context.Context, req CreateBookRequest) (Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	ListBestRated(ctx context.Context, limit int) ([]Book, error)
	UpdateBook(ctx context.Context, req UpdateBookRequest) (Book, error)
	DeleteBook(ctx context.Context, id, callerID uuid.UUID) error
	AddRating(ctx context.Context, bookID uuid.UUID, rating Rating) (Book, error)
}

type Repository interface {
	CreateBook(ctx context.Context, bookEntry Book) (Book, error)
	GetBookByID(ctx context.Context, id uuid.UUID) (Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	ListBestRated(ctx context.Context, limit int) ([]Book, error)
	UpdateBook(ctx context.Context, bookEntry Book) (Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
	AddRating(ctx context.Context, bookID uuid.UUID, rating Rating, newAverage float64) (Book, error)
}

/* ImageStore removes stored image assets referenced by their public URL. */
type ImageStore interface {
	Remove(imageURL string) error
}

type Service struct {
	repo                 Repository
	images               ImageStore
	ntfy                 *notifications.Ntfy
	notificationsTimeout time.Duration
}

func NewService(repo Repository, images ImageStore, ntfy *notifications.Ntfy, notificationsTimeout time.Duration) *Service {
	return &Service{repo: repo, images: images, ntfy: ntfy, notificationsTimeout: notificationsTimeout}
}

type CreateBookRequest struct {
	OwnerID       uuid.UUID
	Title         string
	Author        string
	Year          int
	Genre         string
	ImageURL      string
	Ratings       []Rating
	AverageRating float64
}

/* Stores a new book owned by the authenticated caller. The seed ratings are
expected to be validated at the http boundary, where a failed validation also
cleans up the uploaded image. */
func (s *Service) CreateBook(ctx context.Context, req CreateBookRequest) (Book, error) {
	createdAt := time.Now().UTC().Round(time.Millisecond)

	newBook := Book{
		ID:            uuid.New(),
		UserID:        req.OwnerID,
		Title:         req.Title,
		Author:        req.Author,
		Year:          req.Year,
		Genre:         req.Genre,
		ImageURL:      req.ImageURL,
		Ratings:       req.Ratings,
		AverageRating: math.Round(req.AverageRating*10) / 10,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}

	createdBook, err := s.repo.CreateBook(ctx, newBook)
	if err != nil {
		return Book{}, wrapRepoErr(err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notificationsTimeout)
		defer cancel()
		err := s.ntfy.BookCreated(ctx, createdBook.Title, createdBook.Author)
		if err != nil {
			log.Println(err)
		}
	}()

	return createdBook, nil
}

func (s *Service) GetBook(ctx context.Context, id uuid.UUID) (Book, error) {
	return s.repo.GetBookByID(ctx, id)
}

func (s *Service) ListBooks(ctx context.Context) ([]Book, error) {
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		return nil, wrapRepoErr(err)
	}
	return books, nil
}

/* Returns at most limit books, ordered by average rating descending.
Ties are left in store-native order. */
func (s *Service) ListBestRated(ctx context.Context, limit int) ([]Book, error) {
	books, err := s.repo.ListBestRated(ctx, limit)
	if err != nil {
		return nil, wrapRepoErr(err)
	}
	return books, nil
}

type UpdateBookRequest struct {
	ID          uuid.UUID
	CallerID    uuid.UUID
	Title       string
	Author      string
	Year        int
	Genre       string
	NewImageURL string
}

/* Updates a book after checking ownership against the stored document. Any
owner field coming from the client was already stripped: the request carries no
owner at all. When a new image was uploaded, the previous asset is removed only
after the store write succeeded. */
func (s *Service) UpdateBook(ctx context.Context, req UpdateBookRequest) (Book, error) {
	currentBook, err := s.repo.GetBookByID(ctx, req.ID)
	if err != nil {
		return Book{}, err
	}

	if currentBook.UserID != req.CallerID {
		return Book{}, ErrResponseNotBookOwner
	}

	previousImage := currentBook.ImageURL

	currentBook.Title = req.Title
	currentBook.Author = req.Author
	currentBook.Year = req.Year
	currentBook.Genre = req.Genre
	currentBook.UpdatedAt = time.Now().UTC().Round(time.Millisecond)
	if req.NewImageURL != "" {
		currentBook.ImageURL = req.NewImageURL
	}

	updatedBook, err := s.repo.UpdateBook(ctx, currentBook)
	if err != nil {
		return Book{}, err
	}

	if req.NewImageURL != "" && previousImage != "" && previousImage != req.NewImageURL {
		err := s.images.Remove(previousImage)
		if err != nil {
			log.Println("removing replaced image:", err)
		}
	}

	return updatedBook, nil
}

/* Deletes a book after checking ownership. The image asset is removed first,
but a failed removal never blocks the record deletion: an orphaned asset is the
acceptable residual, a dangling record is not. */
func (s *Service) DeleteBook(ctx context.Context, id, callerID uuid.UUID) error {
	currentBook, err := s.repo.GetBookByID(ctx, id)
	if err != nil {
		return err
	}

	if currentBook.UserID != callerID {
		return ErrResponseNotBookOwner
	}

	if currentBook.ImageURL != "" {
		err := s.images.Remove(currentBook.ImageURL)
		if err != nil {
			log.Println("removing image of deleted book:", err)
		}
	}

	return s.repo.DeleteBook(ctx, id)
}

/* Appends a rating to the book and recomputes the average. A user can rate a
given book only once; a duplicate submission is rejected, never overwritten.
The find and the save are two separate store calls, so concurrent duplicate
submissions from the same user can still race past the check. */
func (s *Service) AddRating(ctx context.Context, bookID uuid.UUID, rating Rating) (Book, error) {
	if !ValidGrade(rating.Grade) {
		return Book{}, ErrResponseInvalidGrade
	}

	currentBook, err := s.repo.GetBookByID(ctx, bookID)
	if err != nil {
		return Book{}, err
	}

	if currentBook.RatedBy(rating.UserID) {
		return Book{}, ErrResponseAlreadyRated
	}

	ratings := make([]Rating, 0, len(currentBook.Ratings)+1)
	ratings = append(ratings, currentBook.Ratings...)
	ratings = append(ratings, rating)

	return s.repo.AddRating(ctx, bookID, rating, AverageOf(ratings))
}

func wrapRepoErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ErrResponse{
		Code:    ErrResponseFromRespository.Code,
		Message: ErrResponseFromRespository.Message + err.Error(),
	}
}
