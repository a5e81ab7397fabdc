package storage

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	midiExt     = ".mid"
	dateLayout  = "20060102"
	stampLayout = "20060102_150405"
)

var (
	ErrNotFound        = errors.New("file not found")
	ErrInvalidFileType = errors.New("only MIDI files are allowed")
	ErrInvalidName     = errors.New("invalid file name")
)

// Store keeps generated files in OutputDir and uploaded seeds in UploadDir
type Store struct {
	outputDir string
	uploadDir string
	now       func() time.Time
}

// NewStore creates both directories if needed
func NewStore(outputDir, uploadDir string) (*Store, error) {
	for _, dir := range []string{outputDir, uploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &Store{outputDir: outputDir, uploadDir: uploadDir, now: time.Now}, nil
}

// NewOutputName returns a fresh name of the form
// output_YYYYMMDD_HHMMSS_<id>.mid
func (s *Store) NewOutputName() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("output_%s_%s%s", s.now().Format(stampLayout), id, midiExt)
}

// OutputPath returns where a generated file named name lives
func (s *Store) OutputPath(name string) (string, error) {
	return resolve(s.outputDir, name)
}

// OpenOutput returns the path of an existing generated file
func (s *Store) OpenOutput(name string) (string, error) {
	return existing(s.outputDir, name)
}

// RemoveOutput deletes a generated file. A missing file is not an error.
func (s *Store) RemoveOutput(name string) error {
	path, err := resolve(s.outputDir, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// SaveUpload stores an uploaded MIDI file under its base name
func (s *Store) SaveUpload(name string, r io.Reader) (string, error) {
	if !strings.EqualFold(filepath.Ext(name), midiExt) {
		return "", fmt.Errorf("%w: %s", ErrInvalidFileType, name)
	}
	path, err := resolve(s.uploadDir, name)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return filepath.Base(path), f.Close()
}

// UploadPath returns the path of an existing uploaded file
func (s *Store) UploadPath(name string) (string, error) {
	return existing(s.uploadDir, name)
}

// CleanOldFiles deletes generated files whose name lacks today's date
// stamp. It returns how many files were removed.
func (s *Store) CleanOldFiles() (int, error) {
	today := s.now().Format(dateLayout)
	log.Printf("🧹 Removing generated files not from %s", today)

	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", s.outputDir, err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || strings.Contains(e.Name(), today) {
			continue
		}
		if err := os.Remove(filepath.Join(s.outputDir, e.Name())); err != nil {
			log.Printf("⚠️  Failed to remove %s: %v", e.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

// resolve joins name onto dir, refusing anything but a plain file name
func resolve(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(dir, name), nil
}

func existing(dir, name string) (string, error) {
	path, err := resolve(dir, name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return path, nil
}
