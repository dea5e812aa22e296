package book

type ErrResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e ErrResponse) Error() string {
	return e.Message
}

var ErrResponseBookNotFound = ErrResponse{101, "book not found"}
var ErrResponseEntryInvalidJSON = ErrResponse{102, "invalid json request."}
var ErrResponseIdInvalidFormat = ErrResponse{103, "the endpoint is not a valid format ID. Must be /api/books/{uuid}"}
var ErrResponseFromRespository = ErrResponse{108, "error from repository: "}
var ErrResponseMissingImage = ErrResponse{120, "an image file is required to create a book."}
var ErrResponseInvalidSeedRating = ErrResponse{121, "a book must be created with an average rating and ratings with grades between 1 and 5."}
var ErrResponseInvalidGrade = ErrResponse{122, "the rating grade must be a number between 1 and 5."}
var ErrResponseNotBookOwner = ErrResponse{123, "only the owner of the book can modify it."}
var ErrResponseAlreadyRated = ErrResponse{124, "this user has already rated this book."}
var ErrResponseRatingNotSelf = ErrResponse{125, "a rating can only be submitted by the authenticated user itself."}
