// Package filestore keeps uploaded profile pictures in a local directory and
// maps them to the public /uploads/ URL space.
package filestore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PublicPrefix is the URL prefix uploaded files are served under.
const PublicPrefix = "/uploads/"

const sniffLen = 512

var (
	// ErrUnsupportedType is returned for uploads that are not a recognised image.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrOutsideStore is returned for public paths that do not resolve into the
	// upload directory.
	ErrOutsideStore = errors.New("path is outside the upload directory")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store is a directory of uploaded files.
type Store struct {
	dir string
}

// New makes sure dir exists.
func New(dir string) (*Store, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("in internal/filestore/filestore.go/New(): error while `filepath.Abs()` calling: %w", err)
	}

	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("in internal/filestore/filestore.go/New(): error while `os.MkdirAll()` calling: %w", err)
	}

	return &Store{dir: absDir}, nil
}

// Dir returns the absolute upload directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save sniffs the content type of src, writes it under a random name and
// returns the public path of the new file. Nothing is left on disk when Save
// fails.
func (s *Store) Save(src io.Reader) (publicPath string, err error) {
	reader := bufio.NewReaderSize(src, sniffLen)
	head, err := reader.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("in internal/filestore/filestore.go/Save(): error while `reader.Peek()` calling: %w", err)
	}

	extension, ok := allowedTypes[http.DetectContentType(head)]
	if !ok {
		return "", ErrUnsupportedType
	}

	name := uuid.NewString() + extension
	diskPath := filepath.Join(s.dir, name)

	file, err := os.OpenFile(diskPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("in internal/filestore/filestore.go/Save(): error while `os.OpenFile()` calling: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(diskPath)
			publicPath = ""
		}
	}()

	if _, err = io.Copy(file, reader); err != nil {
		return "", fmt.Errorf("in internal/filestore/filestore.go/Save(): error while `io.Copy()` calling: %w", err)
	}

	return PublicPrefix + name, nil
}

// DiskPath maps a public path such as /uploads/x.png to its file.
func (s *Store) DiskPath(publicPath string) (string, error) {
	name, found := strings.CutPrefix(publicPath, PublicPrefix)
	if !found || name == "" {
		return "", ErrOutsideStore
	}

	cleaned := path.Clean("/" + name)
	if strings.Count(cleaned, "/") != 1 {
		return "", ErrOutsideStore
	}

	return filepath.Join(s.dir, filepath.FromSlash(cleaned[1:])), nil
}

// Remove deletes the file behind publicPath. A file that is already gone is
// not an error.
func (s *Store) Remove(publicPath string) error {
	diskPath, err := s.DiskPath(publicPath)
	if err != nil {
		return err
	}

	if err := os.Remove(diskPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("in internal/filestore/filestore.go/Remove(): error while `os.Remove()` calling: %w", err)
	}

	return nil
}

// Handler serves the stored files; mount it under PublicPrefix. Directories
// are answered with 404, never listed.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(strings.TrimSuffix(PublicPrefix, "/"), http.FileServer(filesOnly{http.Dir(s.dir)}))
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}

	return file, nil
}
