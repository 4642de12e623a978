package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// tempSuffix marks in-flight files written by an atomic local sink.
const tempSuffix = ".pullmirror-tmp"

// Local writes into a directory tree on an afero filesystem.
type Local struct {
	fs     afero.Fs
	atomic bool
}

// NewLocal creates a local sink on fs.
func NewLocal(fs afero.Fs, atomic bool) *Local {
	return &Local{fs: fs, atomic: atomic}
}

// Write implements Sink. Without atomic mode a failed copy leaves a
// truncated file at name.
func (l *Local) Write(ctx context.Context, name string, r io.Reader) (int64, error) {
	// MkdirAll succeeds when another worker created the directory first.
	if err := l.fs.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	target := name
	if l.atomic {
		target = name + tempSuffix
	}

	f, err := l.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", target, err)
	}

	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		if l.atomic {
			l.fs.Remove(target)
		}
		return n, fmt.Errorf("write %s: %w", target, err)
	}

	if l.atomic {
		if err := l.fs.Rename(target, name); err != nil {
			l.fs.Remove(target)
			return n, fmt.Errorf("rename %s: %w", target, err)
		}
	}
	return n, nil
}

// Close implements Sink.
func (l *Local) Close() error {
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
