// Package task maps enumerated local files onto remote URLs and destination
// paths, and divides the file list among workers.
package task

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned by Map when a path does not live below the
// source root. The walker never produces such paths.
var ErrOutsideRoot = errors.New("task: path is outside the source root")

// FileTask describes the work for a single enumerated file.
type FileTask struct {
	LocalPath       string // absolute path under the source root
	RelativePath    string // slash-separated path relative to the source root
	RemoteURL       string // base URL + RelativePath
	DestinationPath string // destination root joined with RelativePath
}

// Map derives the FileTask for localPath. The remote URL is the plain
// concatenation of baseURL and the slash-separated relative path; nothing is
// escaped. When destRoot is a bucket URL (it contains "://") the destination
// path is the relative key itself.
func Map(localPath, sourceRoot, baseURL, destRoot string) (FileTask, error) {
	rel, err := filepath.Rel(sourceRoot, localPath)
	if err != nil {
		return FileTask{}, fmt.Errorf("%w: %s: %v", ErrOutsideRoot, localPath, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return FileTask{}, fmt.Errorf("%w: %s", ErrOutsideRoot, localPath)
	}

	rel = filepath.ToSlash(rel)

	dest := rel
	if !IsBucketURL(destRoot) {
		dest = filepath.Join(destRoot, filepath.FromSlash(rel))
	}

	return FileTask{
		LocalPath:       localPath,
		RelativePath:    rel,
		RemoteURL:       baseURL + rel,
		DestinationPath: dest,
	}, nil
}

// IsBucketURL reports whether dest names a gocloud bucket rather than a
// local directory.
func IsBucketURL(dest string) bool {
	return strings.Contains(dest, "://")
}
