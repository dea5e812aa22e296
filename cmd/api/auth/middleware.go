package auth

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type ctxKey string

const callerCtxKey ctxKey = "callerId"

type ErrResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e ErrResponse) Error() string {
	return e.Message
}

var ErrResponseUnauthorized = ErrResponse{110, "missing or invalid bearer token."}

/* Wraps a handler of a protected route: the request must carry a valid
"Authorization: Bearer ..." header, and the asserted user identifier is put
into the request context for the handler to read back with CallerID. */
func (a *Auth) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var token string

		header := r.Header.Get("Authorization")
		if header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = parts[1]
			}
		}

		if token == "" {
			unauthorized(w)
			return
		}

		callerID, err := a.ParseToken(token)
		if err != nil {
			log.Println("invalid token:", err)
			unauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), callerCtxKey, callerID)
		next(w, r.WithContext(ctx))
	}
}

/* Reads back the authenticated user identifier stored by Wrap. */
func CallerID(ctx context.Context) (uuid.UUID, bool) {
	callerID, ok := ctx.Value(callerCtxKey).(uuid.UUID)
	return callerID, ok
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	err := json.NewEncoder(w).Encode(ErrResponseUnauthorized)
	if err != nil {
		log.Println(err)
	}
}
