package images

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/png"

	_ "golang.org/x/image/webp"
)

/* Uploads bigger than 2 MiB are rejected before anything touches the disk. */
const MaxFileSize = 2 * 1024 * 1024

/* Authorized image mime types and the extension the raw upload is stored
under before re-encoding. */
var mimeTypes = map[string]string{
	"image/jpg":  "jpg",
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

const outputExtension = "jpg"
const outputQuality = 80

/* Store writes uploaded images to a local directory and serves them back
under baseURL + "/images/". It keeps no state between ingests: same-named
inputs never reuse anything from a previous upload. */
type Store struct {
	dir     string
	baseURL string
}

func NewStore(dir, baseURL string) (*Store, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("creating images directory: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

/* Ingest validates an uploaded file, writes it to disk, re-encodes it to a
compressed format and returns the public URL of the final asset.

The stored name is the original one with whitespace replaced by underscores
and the extension stripped, prefixed with the caller-supplied identifier when
there is one, and suffixed with a nanosecond timestamp so that concurrent
uploads of the same file never collide. The persisted extension is always the
pipeline's output format. The raw original is removed after re-encoding; a
failed removal is logged, not fatal. */
func (s *Store) Ingest(file multipart.File, header *multipart.FileHeader, prefix string) (string, error) {
	if header.Size > MaxFileSize {
		return "", ErrResponseImageTooLarge
	}

	extension, ok := mimeTypes[header.Header.Get("Content-Type")]
	if !ok {
		return "", ErrResponseUnsupportedFormat
	}

	name := strings.Join(strings.Fields(header.Filename), "_")
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if prefix != "" {
		name = prefix + "_" + name
	}
	name = fmt.Sprintf("%s_%d", name, time.Now().UnixNano())

	originalPath := filepath.Join(s.dir, name+"."+extension)
	err := writeFile(originalPath, file)
	if err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}

	finalName := name + "." + outputExtension
	finalPath := filepath.Join(s.dir, finalName)
	err = reencode(originalPath, finalPath)
	if err != nil {
		if removeErr := os.Remove(originalPath); removeErr != nil {
			log.Println("removing failed upload:", removeErr)
		}
		return "", err
	}

	if originalPath != finalPath {
		err = os.Remove(originalPath)
		if err != nil {
			log.Println("removing original upload:", err)
		}
	}

	return s.baseURL + "/images/" + finalName, nil
}

/* Remove deletes the asset a public URL produced by Ingest refers to. */
func (s *Store) Remove(imageURL string) error {
	_, name, found := strings.Cut(imageURL, "/images/")
	if !found || name == "" {
		return fmt.Errorf("not a managed asset URL: %q", imageURL)
	}

	return os.Remove(filepath.Join(s.dir, filepath.Base(name)))
}

func writeFile(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrResponseStorageIO, err)
	}

	_, err = io.Copy(dst, src)
	if err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("%w: %s", ErrResponseStorageIO, err)
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: %s", ErrResponseStorageIO, err)
	}
	return nil
}

/* Decodes the raw upload (jpeg, png or webp) and writes it back as a lossy
compressed image at a fixed quality level. */
func reencode(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrResponseStorageIO, err)
	}
	defer src.Close()

	img, _, err := image.Decode(src)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrResponseEncodeFailed, err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrResponseStorageIO, err)
	}

	err = jpeg.Encode(dst, img, &jpeg.Options{Quality: outputQuality})
	if err != nil {
		dst.Close()
		os.Remove(dstPath)
		return fmt.Errorf("%w: %s", ErrResponseEncodeFailed, err)
	}

	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: %s", ErrResponseStorageIO, err)
	}
	return nil
}
