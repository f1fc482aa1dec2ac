package covers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a requested cover file does not exist or the
// name does not refer to a file inside the storage root.
var ErrNotFound = errors.New("cover not found")

// Storage persists cover files under bare file names.
type Storage interface {
	Save(name string, r io.Reader) error
	Remove(name string) error
	Open(name string) (*os.File, os.FileInfo, error)
}

// DiskStorage keeps files in a single directory on the local filesystem.
type DiskStorage struct {
	root string
}

// NewDiskStorage creates root when missing.
func NewDiskStorage(root string) (*DiskStorage, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &DiskStorage{root: root}, nil
}

// Root returns the directory files are stored in.
func (d *DiskStorage) Root() string {
	return d.root
}

// Save writes r to a temporary file and renames it over name, so readers see
// either the old file or the complete new one.
func (d *DiskStorage) Save(name string, r io.Reader) (err error) {
	target, err := d.path(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// Remove deletes name. A missing file yields an error satisfying
// errors.Is(err, ErrNotFound).
func (d *DiskStorage) Remove(name string) error {
	target, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// Open returns the file together with its metadata. Directories are reported
// as missing.
func (d *DiskStorage) Open(name string) (*os.File, os.FileInfo, error) {
	target, err := d.path(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, info, nil
}

func (d *DiskStorage) path(name string) (string, error) {
	if !IsBareName(name) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return filepath.Join(d.root, name), nil
}

// IsBareName reports whether name is a plain file name with no directory
// component. Hidden names are rejected as well, which keeps in-flight temp
// files out of reach.
func IsBareName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}
