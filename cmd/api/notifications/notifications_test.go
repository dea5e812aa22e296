package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestBookCreated(t *testing.T) {

	t.Run("posts the announcement on the topic", func(t *testing.T) {
		is := is.New(t)

		var gotPath string
		var gotBody string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			body, err := io.ReadAll(r.Body)
			is.NoErr(err)
			gotBody = string(body)
		}))
		defer server.Close()

		ntfy := NewNtfy(true, server.URL, server.Client())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		err := ntfy.BookCreated(ctx, "The Test Pyramid", "M. Fowler")
		is.NoErr(err)
		is.Equal(gotPath, "/New_book_created")
		is.Equal(gotBody, "New book created:\nTitle: The Test Pyramid\nAuthor: M. Fowler")
	})

	t.Run("does nothing when disabled", func(t *testing.T) {
		is := is.New(t)

		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
		}))
		defer server.Close()

		ntfy := NewNtfy(false, server.URL, server.Client())

		err := ntfy.BookCreated(context.Background(), "silent", "nobody")
		is.NoErr(err)
		is.Equal(requests, 0)
	})

	t.Run("reports a non 200 from the topic", func(t *testing.T) {
		is := is.New(t)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		ntfy := NewNtfy(true, server.URL, server.Client())

		err := ntfy.BookCreated(context.Background(), "title", "author")
		is.Equal(err, NewErrNotificationFailed(http.StatusTooManyRequests))
	})

	t.Run("expected context timeout error", func(t *testing.T) {
		is := is.New(t)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		ntfy := NewNtfy(true, server.URL, server.Client())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Millisecond)
		defer cancel()

		err := ntfy.BookCreated(ctx, "book to test context timeout", "nobody")
		is.True(errors.Is(err, context.DeadlineExceeded))
	})
}
