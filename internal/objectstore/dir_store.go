package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const dirPermissions = 0o750

// DirStore implements core.ArtifactStore on a local directory.
// Locations are absolute file paths.
type DirStore struct {
	dir string
}

// NewDir creates the directory if needed and returns a DirStore rooted at it.
func NewDir(dir string) (*DirStore, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory '%s': %w", dir, err)
	}

	err = os.MkdirAll(absDir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", absDir, err)
	}

	return &DirStore{dir: absDir}, nil
}

// Put moves the file at localPath into the store.
func (d *DirStore) Put(_ context.Context, jobID, localPath string) (string, error) {
	dest := filepath.Join(d.dir, artifactName(jobID))

	err := os.Rename(localPath, dest)
	if err == nil {
		return dest, nil
	}

	// Rename fails across filesystems; fall back to copying.
	copyErr := copyFile(localPath, dest)
	if copyErr != nil {
		return "", fmt.Errorf("failed to move artifact to '%s': %w", dest, errors.Join(err, copyErr))
	}

	return dest, nil
}

// Open opens the artifact for reading.
func (d *DirStore) Open(_ context.Context, location string) (io.ReadCloser, error) {
	file, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact '%s': %w", location, err)
	}

	return file, nil
}

// Exists reports whether the artifact is still a regular file on disk.
func (d *DirStore) Exists(_ context.Context, location string) (bool, error) {
	info, err := os.Stat(location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat artifact '%s': %w", location, err)
	}

	return info.Mode().IsRegular(), nil
}

// Delete removes the artifact. Deleting a missing artifact is not an error.
func (d *DirStore) Delete(_ context.Context, location string) error {
	err := os.Remove(location)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact '%s': %w", location, err)
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()

	if copyErr != nil || closeErr != nil {
		_ = os.Remove(dst)

		return errors.Join(copyErr, closeErr)
	}

	return os.Remove(src)
}
