package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type ServiceAPI interface {
	Signup(ctx context.Context, email, password string) (User, error)
	Login(ctx context.Context, email, password string) (User, error)
}

type Repository interface {
	CreateUser(ctx context.Context, userEntry User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

/* Stores a new account. Only the bcrypt hash of the password is persisted.
The email is unique, enforced by the store. */
func (s *Service) Signup(ctx context.Context, email, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	newUser := User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC().Round(time.Millisecond),
	}

	return s.repo.CreateUser(ctx, newUser)
}

/* Verifies the email/password pair. An unknown email and a wrong password are
indistinguishable to the caller. */
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	storedUser, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return User{}, ErrResponseInvalidCredentials
	}

	err = bcrypt.CompareHashAndPassword([]byte(storedUser.PasswordHash), []byte(password))
	if err != nil {
		return User{}, ErrResponseInvalidCredentials
	}

	return storedUser, nil
}
