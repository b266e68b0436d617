package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact is a completed, packed file.
type Artifact struct {
	Path    string
	Format  Format
	Entries int
	Size    int64
}

// Packer turns ordered pages into one file at dest.
type Packer interface {
	Format() Format
	Pack(ctx context.Context, pages []Page, dest string) (Artifact, error)
}

// PackError reports why packing failed. Index is the offending page, or -1.
type PackError struct {
	Op    string
	Index int
	Path  string
	Err   error
}

func (e *PackError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("pack %s: page %d: %v", e.Op, e.Index+1, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("pack %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("pack %s: %v", e.Op, e.Err)
}

func (e *PackError) Unwrap() error {
	return e.Err
}

func validatePages(pages []Page) error {
	if len(pages) == 0 {
		return &PackError{Op: "validate", Index: -1, Err: fmt.Errorf("no pages")}
	}
	for i, page := range pages {
		if len(page.Data) == 0 {
			return &PackError{Op: "validate", Index: i, Err: fmt.Errorf("page is empty")}
		}
	}
	return nil
}

// writeAtomic streams into a temp file beside dest and renames it into place
// only after write succeeds and the data is synced. On any failure the temp
// file is removed and dest is untouched.
func writeAtomic(dest string, write func(f *os.File) error) (int64, error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".partial-*")
	if err != nil {
		return 0, &PackError{Op: "create", Index: -1, Path: dest, Err: err}
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, &PackError{Op: "sync", Index: -1, Path: tmpPath, Err: err}
	}
	info, err := tmp.Stat()
	if err != nil {
		return 0, &PackError{Op: "stat", Index: -1, Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return 0, &PackError{Op: "close", Index: -1, Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return 0, &PackError{Op: "rename", Index: -1, Path: dest, Err: err}
	}
	committed = true
	return info.Size(), nil
}
