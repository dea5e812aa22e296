package book

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type Book struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Title         string
	Author        string
	Year          int
	Genre         string
	ImageURL      string
	Ratings       []Rating
	AverageRating float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Rating struct {
	UserID uuid.UUID
	Grade  int
}

/* Reports whether a grade is inside the accepted 1 to 5 range. */
func ValidGrade(grade int) bool {
	return grade >= 1 && grade <= 5
}

/* Computes the mean of all grades, rounded to one decimal place. */
func AverageOf(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}

	total := 0
	for _, r := range ratings {
		total += r.Grade
	}

	return math.Round(float64(total)/float64(len(ratings))*10) / 10
}

/* Reports whether the given user already has a rating on the book. */
func (b Book) RatedBy(userID uuid.UUID) bool {
	for _, r := range b.Ratings {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

/* Verifies the seed ratings of a new book entry: the average must be in range
and there must be at least one rating, every grade between 1 and 5. */
func ValidSeedRatings(averageRating float64, ratings []Rating) error {
	if averageRating < 1 || averageRating > 5 {
		return ErrResponseInvalidSeedRating
	}
	if len(ratings) == 0 {
		return ErrResponseInvalidSeedRating
	}
	for _, r := range ratings {
		if !ValidGrade(r.Grade) {
			return ErrResponseInvalidSeedRating
		}
	}

	return nil
}
