package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bookshelf-service/cmd/api/auth"
	"github.com/bookshelf-service/cmd/api/book"
	"github.com/bookshelf-service/cmd/api/database"
	bookhttp "github.com/bookshelf-service/cmd/api/http"
	"github.com/bookshelf-service/cmd/api/images"
	"github.com/bookshelf-service/cmd/api/notifications"
	"github.com/bookshelf-service/cmd/api/user"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	_ "github.com/lib/pq"
)

const tokenTTL = 24 * time.Hour

func main() {
	err := run()
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	//connect to db:
	connStr := os.Getenv("DATABASE_URL")
	dbObject, err := database.ConnectDb(connStr)
	if err != nil {
		return fmt.Errorf("connecting with db: %w", err)
	}

	defer dbObject.Close()

	//apply migrations:
	store := database.NewStore(dbObject)
	path := os.Getenv("DATABASE_MIGRATIONS_PATH")
	err = database.MigrationUp(store, path)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating: %w", err)
	}

	//image pipeline:
	imagesDir := getEnvDefault("IMAGES_DIR", "images")
	publicBaseURL := getEnvDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	imageStore, err := images.NewStore(imagesDir, publicBaseURL)
	if err != nil {
		return fmt.Errorf("preparing image store: %w", err)
	}

	//notifications:
	notificationsEnabled := os.Getenv("NOTIFICATIONS_ENABLED") == "true"
	notificationsBaseURL := getEnvDefault("NOTIFICATIONS_URL", "https://ntfy.sh/bookshelf_service")
	notificationsTimeout, err := time.ParseDuration(getEnvDefault("NOTIFICATIONS_TIMEOUT", "2s"))
	if err != nil {
		return fmt.Errorf("getting notifications timeout from env: %w", err)
	}
	ntfy := notifications.NewNtfy(notificationsEnabled, notificationsBaseURL, &http.Client{})

	//auth:
	jwtSecret := getEnvDefault("JWT_SECRET", "dev_secret_change_me")
	authn := auth.NewAuth([]byte(jwtSecret), tokenTTL)

	bookService := book.NewService(store, imageStore, ntfy, notificationsTimeout)
	bookHandler := bookhttp.NewBookHandler(bookService, imageStore, authn)
	userService := user.NewService(store)
	userHandler := bookhttp.NewUserHandler(userService, authn)

	//create and init http server:
	port, err := serverPort()
	if err != nil {
		return err
	}
	server := bookhttp.NewServer(bookhttp.ServerConfig{Port: port, ImagesDir: imagesDir}, bookHandler, userHandler)

	go func() (err error) {
		err = server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("unexpected http server error: %w", err)
		}
		return nil
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	ctx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	log.Println("Graceful shutdown complete.")
	return err
}

func serverPort() (int, error) {
	port, err := strconv.Atoi(getEnvDefault("PORT", "8080"))
	if err != nil {
		return 0, fmt.Errorf("getting port from env: %w", err)
	}
	return port, nil
}

func getEnvDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
