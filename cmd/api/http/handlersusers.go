package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/bookshelf-service/cmd/api/auth"
	"github.com/bookshelf-service/cmd/api/book"
	"github.com/bookshelf-service/cmd/api/user"
	"github.com/google/uuid"
)

type UserHandler struct {
	userService user.ServiceAPI
	auth        *auth.Auth
}

func NewUserHandler(userService user.ServiceAPI, authn *auth.Auth) *UserHandler {
	return &UserHandler{userService: userService, auth: authn}
}

type CredentialsEntry struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

/* Creates a new account from an email/password pair. */
func (h *UserHandler) signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var entry CredentialsEntry
	err := json.NewDecoder(r.Body).Decode(&entry)
	if err != nil {
		log.Println(err)
		errR := book.ErrResponse{
			Code:    book.ErrResponseEntryInvalidJSON.Code,
			Message: book.ErrResponseEntryInvalidJSON.Message + err.Error(),
		}
		responseJSON(w, http.StatusBadRequest, errR)
		return
	}

	if entry.Email == "" || entry.Password == "" {
		responseJSON(w, http.StatusBadRequest, user.ErrResponseUserEntryBlankFields)
		return
	}

	_, err = h.userService.Signup(r.Context(), entry.Email, entry.Password)
	if err != nil {
		if errors.Is(err, user.ErrResponseEmailAlreadyTaken) {
			responseJSON(w, http.StatusConflict, user.ErrResponseEmailAlreadyTaken)
			return
		}
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	responseJSON(w, http.StatusCreated, MessageResponse{Message: "user created"})
}

type LoginResponse struct {
	UserID uuid.UUID `json:"userId"`
	Token  string    `json:"token"`
}

/* Verifies the credentials and answers with a bearer token asserting the
user identifier. */
func (h *UserHandler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var entry CredentialsEntry
	err := json.NewDecoder(r.Body).Decode(&entry)
	if err != nil {
		log.Println(err)
		responseJSON(w, http.StatusBadRequest, book.ErrResponseEntryInvalidJSON)
		return
	}

	loggedUser, err := h.userService.Login(r.Context(), entry.Email, entry.Password)
	if err != nil {
		if errors.Is(err, user.ErrResponseInvalidCredentials) {
			responseJSON(w, http.StatusUnauthorized, user.ErrResponseInvalidCredentials)
			return
		}
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	token, err := h.auth.IssueToken(loggedUser.ID)
	if err != nil {
		log.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	responseJSON(w, http.StatusOK, LoginResponse{UserID: loggedUser.ID, Token: token})
}
