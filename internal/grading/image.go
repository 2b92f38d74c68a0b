package grading

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"digital-dean/internal/models"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

// File is an opened image file
type File interface {
	io.ReadSeekCloser
}

// FileSystem opens and removes the temporary image
type FileSystem interface {
	Open(name string) (File, error)
	Remove(name string) error
}

type osFS struct{}

func (osFS) Open(name string) (File, error) { return os.Open(name) }

func (osFS) Remove(name string) error { return os.Remove(name) }

// CleanPath strips surrounding whitespace and quotes, as left by drag and drop into a terminal
func CleanPath(p string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(p), `"'`))
}

// scopedImage owns the temporary image for one grading call. The file is closed at most
// once, always before it is removed, and removed at most once.
type scopedImage struct {
	fs   FileSystem
	path string

	file       File
	closeOnce  sync.Once
	removeOnce sync.Once
}

func newScopedImage(fsys FileSystem, path string) *scopedImage {
	return &scopedImage{fs: fsys, path: path}
}

// open opens the file and sniffs its format; the returned reader is positioned at the start
func (s *scopedImage) open() (models.Image, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return models.Image{}, fmt.Errorf("%w: %w", models.ErrImageUnreadable, err)
	}
	s.file = f

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return models.Image{}, fmt.Errorf("%w: %w", models.ErrImageUnreadable, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return models.Image{}, fmt.Errorf("%w: %w", models.ErrImageUnreadable, err)
	}
	return models.Image{MIMEType: "image/" + format, Reader: f}, nil
}

func (s *scopedImage) close() {
	if s.file == nil {
		return
	}
	s.closeOnce.Do(func() {
		if err := s.file.Close(); err != nil {
			log.Warn().Err(fmt.Errorf("%w: close: %w", models.ErrResourceCleanup, err)).Str("path", s.path).Msg("Failed to close image")
		}
	})
}

// release closes the image if it is open, then deletes it. Failures are logged only.
func (s *scopedImage) release() {
	s.close()
	s.removeOnce.Do(func() {
		err := s.fs.Remove(s.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(fmt.Errorf("%w: remove: %w", models.ErrResourceCleanup, err)).Str("path", s.path).Msg("Failed to delete image")
			return
		}
		log.Debug().Str("path", s.path).Msg("Deleted temporary image")
	})
}
