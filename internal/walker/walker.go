// Package walker enumerates the regular files of a directory tree.
package walker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrNotDirectory is returned when the walk root is not a directory.
var ErrNotDirectory = errors.New("walker: root is not a directory")

// Error reports an enumeration failure and the path it occurred at.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("walk %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Walk returns the absolute paths of all non-directory entries below root,
// recursing into every subdirectory. Entries are returned in lexical order.
// Any read failure aborts the walk.
func Walk(fsys afero.Fs, root string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &Error{Path: root, Err: err}
	}

	info, err := fsys.Stat(abs)
	if err != nil {
		return nil, &Error{Path: abs, Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Path: abs, Err: ErrNotDirectory}
	}

	var files []string
	err = afero.Walk(fsys, abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return &Error{Path: path, Err: err}
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		var werr *Error
		if errors.As(err, &werr) {
			return nil, werr
		}
		return nil, &Error{Path: abs, Err: err}
	}

	return files, nil
}
