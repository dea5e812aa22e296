package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Auth struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewAuth(secret []byte, tokenTTL time.Duration) *Auth {
	return &Auth{secret: secret, tokenTTL: tokenTTL}
}

type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

/* Issues an HS256 bearer token asserting the user identifier. */
func (a *Auth) IssueToken(userID uuid.UUID) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

/* Validates a bearer token and returns the user identifier it asserts. */
func (a *Auth) ParseToken(tokenString string) (uuid.UUID, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return a.secret, nil
		})
	if err != nil {
		return uuid.Nil, err
	}

	if !token.Valid {
		return uuid.Nil, errors.New("invalid token")
	}

	return uuid.Parse(claims.UserID)
}
