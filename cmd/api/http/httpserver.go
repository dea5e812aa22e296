package http

import (
	"fmt"
	"net/http"
)

type ServerConfig struct {
	Port      int
	ImagesDir string
}

func NewServer(config ServerConfig, bookHandler *BookHandler, userHandler *UserHandler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", ping)
	mux.HandleFunc("/api/auth/signup", userHandler.signup)
	mux.HandleFunc("/api/auth/login", userHandler.login)
	mux.HandleFunc("/api/books", bookHandler.books)
	mux.HandleFunc("/api/books/", bookHandler.booksSubtree)
	mux.Handle("/images/", http.StripPrefix("/images/", http.FileServer(http.Dir(config.ImagesDir))))

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: allowCORS(mux),
	}
	return &server
}

/* Tests the http server connection.  */
func ping(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	if method == http.MethodGet {
		w.WriteHeader(http.StatusNoContent)
		return
	} else {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}

/* Permits cross-origin requests from any origin on every endpoint. */
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content, Accept, Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, DELETE, PATCH, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
