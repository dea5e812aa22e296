package http

import (
	"encoding/json"
	"errors"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/bookshelf-service/cmd/api/auth"
	"github.com/bookshelf-service/cmd/api/book"
	"github.com/bookshelf-service/cmd/api/images"
	"github.com/google/uuid"
)

/* ImageIngestor is the slice of the image pipeline the handlers need: storing
an upload and cleaning one up again when the rest of the request is invalid. */
type ImageIngestor interface {
	Ingest(file multipart.File, header *multipart.FileHeader, prefix string) (string, error)
	Remove(imageURL string) error
}

type BookHandler struct {
	bookService book.ServiceAPI
	images      ImageIngestor
	auth        *auth.Auth
}

func NewBookHandler(bookService book.ServiceAPI, images ImageIngestor, authn *auth.Auth) *BookHandler {
	return &BookHandler{bookService: bookService, images: images, auth: authn}
}

/* Addresses a call to "/api/books" according to the requested action.  */
func (h *BookHandler) books(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	switch method {
	case http.MethodGet:
		h.listBooks(w, r)
		return
	case http.MethodPost:
		h.auth.Wrap(h.createBook)(w, r)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}

/* Addresses a call below "/api/books/": the best rated listing, a rating
submission, or a single book. */
func (h *BookHandler) booksSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/books/")
	switch {
	case rest == "bestrating":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.bestRated(w, r)
	case strings.HasSuffix(rest, "/rating"):
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.auth.Wrap(h.addRating)(w, r)
	default:
		h.bookById(w, r)
	}
}

/* Addresses a call to "/api/books/(expected id here)" according to the
requested action.  */
func (h *BookHandler) bookById(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	switch method {
	case http.MethodGet:
		h.getBookById(w, r)
		return
	case http.MethodPut:
		h.auth.Wrap(h.updateBook)(w, r)
		return
	case http.MethodDelete:
		h.auth.Wrap(h.deleteBook)(w, r)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}

type BookEntry struct {
	Title         string        `json:"title"`
	Author        string        `json:"author"`
	Year          int           `json:"year"`
	Genre         string        `json:"genre"`
	Ratings       []RatingEntry `json:"ratings"`
	AverageRating *float64      `json:"averageRating"`
}

type RatingEntry struct {
	UserID string  `json:"userId"`
	Grade  float64 `json:"grade"`
}

/* Stores the uploaded image, then validates and stores the book metadata.
The checks run in a fixed order: a missing file is rejected before any
parsing, and every metadata rejection after the upload removes the
just-written asset so no orphan is left behind. */
func (h *BookHandler) createBook(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.CallerID(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		responseJSON(w, http.StatusBadRequest, book.ErrResponseMissingImage)
		return
	}
	defer file.Close()

	imageURL, err := h.images.Ingest(file, header, "")
	if err != nil {
		h.respondImageError(w, err)
		return
	}

	var bookEntry BookEntry
	err = json.Unmarshal([]byte(r.FormValue("book")), &bookEntry)
	if err != nil {
		log.Println(err)
		h.cleanupAsset(imageURL)
		errR := book.ErrResponse{
			Code:    book.ErrResponseEntryInvalidJSON.Code,
			Message: book.ErrResponseEntryInvalidJSON.Message + err.Error(),
		}
		responseJSON(w, http.StatusBadRequest, errR)
		return
	}

	ratings, err := entryToRatings(bookEntry.Ratings)
	if err != nil {
		h.cleanupAsset(imageURL)
		responseJSON(w, http.StatusBadRequest, book.ErrResponseInvalidSeedRating)
		return
	}

	averageRating := 0.0
	if bookEntry.AverageRating != nil {
		averageRating = *bookEntry.AverageRating
	}
	err = book.ValidSeedRatings(averageRating, ratings)
	if err != nil {
		h.cleanupAsset(imageURL)
		responseJSON(w, http.StatusBadRequest, book.ErrResponseInvalidSeedRating)
		return
	}

	// Any id or owner field the client may have sent is discarded here: the
	// owner always comes from the token and the image URL from the pipeline.
	reqBook := book.CreateBookRequest{
		OwnerID:       callerID,
		Title:         bookEntry.Title,
		Author:        bookEntry.Author,
		Year:          bookEntry.Year,
		Genre:         bookEntry.Genre,
		ImageURL:      imageURL,
		Ratings:       ratings,
		AverageRating: averageRating,
	}

	storedBook, err := h.bookService.CreateBook(r.Context(), reqBook)
	if err != nil {
		// The asset is deliberately not rolled back on a store failure.
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	responseJSON(w, http.StatusCreated, bookToResponse(storedBook))
}

/* Validates the entry, then updates the asked book. Accepts either a
multipart request with a replacement image or a plain json body. */
func (h *BookHandler) updateBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	callerID, ok := auth.CallerID(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var bookEntry BookEntry
	newImageURL := ""

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, errFile := r.FormFile("image")
		if errFile == nil {
			defer file.Close()
			newImageURL, err = h.images.Ingest(file, header, id.String())
			if err != nil {
				h.respondImageError(w, err)
				return
			}
		}

		err = json.Unmarshal([]byte(r.FormValue("book")), &bookEntry)
	} else {
		err = json.NewDecoder(r.Body).Decode(&bookEntry)
	}
	if err != nil {
		log.Println(err)
		if newImageURL != "" {
			h.cleanupAsset(newImageURL)
		}
		errR := book.ErrResponse{
			Code:    book.ErrResponseEntryInvalidJSON.Code,
			Message: book.ErrResponseEntryInvalidJSON.Message + err.Error(),
		}
		responseJSON(w, http.StatusBadRequest, errR)
		return
	}

	reqBook := book.UpdateBookRequest{
		ID:          id,
		CallerID:    callerID,
		Title:       bookEntry.Title,
		Author:      bookEntry.Author,
		Year:        bookEntry.Year,
		Genre:       bookEntry.Genre,
		NewImageURL: newImageURL,
	}

	updatedBook, err := h.bookService.UpdateBook(r.Context(), reqBook)
	if err != nil {
		if newImageURL != "" && (errors.Is(err, book.ErrResponseBookNotFound) || errors.Is(err, book.ErrResponseNotBookOwner)) {
			h.cleanupAsset(newImageURL)
		}
		h.respondBookError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(updatedBook))
}

/* Deletes the asked book and its image asset, owner only. */
func (h *BookHandler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	callerID, ok := auth.CallerID(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	err = h.bookService.DeleteBook(r.Context(), id, callerID)
	if err != nil {
		h.respondBookError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, MessageResponse{Message: "book deleted"})
}

// Rating is decoded loosely on purpose: a non-numeric grade is a grade
// error, not a malformed request.
type RatingSubmission struct {
	UserID string `json:"userId"`
	Rating any    `json:"rating"`
}

/* Appends a rating to the asked book. A user can only submit a rating as
themselves, and the grade must be a whole number between 1 and 5. */
func (h *BookHandler) addRating(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	callerID, ok := auth.CallerID(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var submission RatingSubmission
	err = json.NewDecoder(r.Body).Decode(&submission)
	if err != nil {
		log.Println(err)
		errR := book.ErrResponse{
			Code:    book.ErrResponseEntryInvalidJSON.Code,
			Message: book.ErrResponseEntryInvalidJSON.Message + err.Error(),
		}
		responseJSON(w, http.StatusBadRequest, errR)
		return
	}

	gradeFloat, ok := submission.Rating.(float64)
	if !ok {
		responseJSON(w, http.StatusBadRequest, book.ErrResponseInvalidGrade)
		return
	}
	grade := int(gradeFloat)
	if float64(grade) != gradeFloat || !book.ValidGrade(grade) {
		responseJSON(w, http.StatusBadRequest, book.ErrResponseInvalidGrade)
		return
	}

	userID, err := uuid.Parse(submission.UserID)
	if err != nil {
		responseJSON(w, http.StatusBadRequest, book.ErrResponseEntryInvalidJSON)
		return
	}

	if userID != callerID {
		responseJSON(w, http.StatusForbidden, book.ErrResponseRatingNotSelf)
		return
	}

	updatedBook, err := h.bookService.AddRating(r.Context(), id, book.Rating{UserID: userID, Grade: grade})
	if err != nil {
		h.respondBookError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(updatedBook))
}

/* Returns the book with that specific ID. */
func (h *BookHandler) getBookById(w http.ResponseWriter, r *http.Request) {
	id, err := isolateId(w, r)
	if err != nil {
		return
	}

	returnedBook, err := h.bookService.GetBook(r.Context(), id)
	if err != nil {
		h.respondBookError(w, err)
		return
	}

	responseJSON(w, http.StatusOK, bookToResponse(returnedBook))
}

/* Returns a list of all the stored books. */
func (h *BookHandler) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.bookService.ListBooks(r.Context())
	if err != nil {
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	responseJSON(w, http.StatusOK, booksToResponse(books))
}

const bestRatedLimit = 3

/* Returns the top rated books, best average first. */
func (h *BookHandler) bestRated(w http.ResponseWriter, r *http.Request) {
	books, err := h.bookService.ListBestRated(r.Context(), bestRatedLimit)
	if err != nil {
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	responseJSON(w, http.StatusOK, booksToResponse(books))
}

/* Maps the coded book service errors onto status codes. */
func (h *BookHandler) respondBookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, book.ErrResponseBookNotFound):
		log.Println(err)
		responseJSON(w, http.StatusNotFound, book.ErrResponseBookNotFound)
	case errors.Is(err, book.ErrResponseNotBookOwner):
		responseJSON(w, http.StatusForbidden, book.ErrResponseNotBookOwner)
	case errors.Is(err, book.ErrResponseAlreadyRated):
		responseJSON(w, http.StatusConflict, book.ErrResponseAlreadyRated)
	case errors.Is(err, book.ErrResponseInvalidGrade):
		responseJSON(w, http.StatusBadRequest, book.ErrResponseInvalidGrade)
	default:
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

/* Maps the coded image pipeline errors onto status codes. */
func (h *BookHandler) respondImageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, images.ErrResponseImageTooLarge):
		responseJSON(w, http.StatusBadRequest, images.ErrResponseImageTooLarge)
	case errors.Is(err, images.ErrResponseUnsupportedFormat):
		responseJSON(w, http.StatusBadRequest, images.ErrResponseUnsupportedFormat)
	default:
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

/* Best effort removal of an uploaded asset after a rejected request.
A failed cleanup is logged, never escalated into the response. */
func (h *BookHandler) cleanupAsset(imageURL string) {
	err := h.images.Remove(imageURL)
	if err != nil {
		log.Println("cleaning up rejected upload:", err)
	}
}

/* Converts the seed rating entries to domain ratings. Grades must be whole
numbers and the user ids valid uuids. */
func entryToRatings(entries []RatingEntry) ([]book.Rating, error) {
	ratings := make([]book.Rating, 0, len(entries))
	for _, entry := range entries {
		userID, err := uuid.Parse(entry.UserID)
		if err != nil {
			return nil, book.ErrResponseInvalidSeedRating
		}
		grade := int(entry.Grade)
		if float64(grade) != entry.Grade {
			return nil, book.ErrResponseInvalidSeedRating
		}
		ratings = append(ratings, book.Rating{UserID: userID, Grade: grade})
	}
	return ratings, nil
}

/* Isolates the ID from the URL. */
func isolateId(w http.ResponseWriter, r *http.Request) (id uuid.UUID, err error) {
	justId := strings.TrimPrefix(r.URL.Path, "/api/books/")
	justId = strings.TrimSuffix(justId, "/rating")
	id, err = uuid.Parse(justId)
	if err != nil {
		log.Println(err)
		responseJSON(w, http.StatusBadRequest, book.ErrResponseIdInvalidFormat)
		return id, err
	}
	return id, nil
}

type BookResponse struct {
	ID            uuid.UUID        `json:"id"`
	UserID        uuid.UUID        `json:"userId"`
	Title         string           `json:"title"`
	Author        string           `json:"author"`
	Year          int              `json:"year"`
	Genre         string           `json:"genre"`
	ImageURL      string           `json:"imageUrl"`
	Ratings       []RatingResponse `json:"ratings"`
	AverageRating float64          `json:"averageRating"`
}

type RatingResponse struct {
	UserID uuid.UUID `json:"userId"`
	Grade  int       `json:"grade"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

/*Copy the fields of a book object to an http layer struct with json tags*/
func bookToResponse(b book.Book) BookResponse {
	ratings := []RatingResponse{}
	for _, r := range b.Ratings {
		ratings = append(ratings, RatingResponse{UserID: r.UserID, Grade: r.Grade})
	}

	return BookResponse{
		ID:            b.ID,
		UserID:        b.UserID,
		Title:         b.Title,
		Author:        b.Author,
		Year:          b.Year,
		Genre:         b.Genre,
		ImageURL:      b.ImageURL,
		Ratings:       ratings,
		AverageRating: b.AverageRating,
	}
}

func booksToResponse(books []book.Book) []BookResponse {
	results := []BookResponse{}
	for _, b := range books {
		results = append(results, bookToResponse(b))
	}
	return results
}

/*Writes a JSON response into a http.ResponseWriter. */
func responseJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
}
