// Package sink writes downloaded files into the destination tree: either a
// local directory or a gocloud bucket.
package sink

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/spf13/afero"

	"github.com/ligustah/pullmirror/internal/task"
)

// Sink stores streamed file contents under a destination name.
type Sink interface {
	// Write streams r into name, creating parent directories as needed and
	// overwriting any existing content. It returns the number of bytes
	// written.
	Write(ctx context.Context, name string, r io.Reader) (int64, error)

	// Close releases resources held by the sink.
	Close() error
}

// Options configures Open.
type Options struct {
	// Atomic makes local sinks write to a temporary file and rename it into
	// place on success. Bucket sinks are always atomic.
	Atomic bool

	// Fs overrides the filesystem used for local destinations.
	Fs afero.Fs
}

// Open returns the sink for dest. A dest containing "://" is opened as a
// gocloud bucket URL (s3://, gs://, file://, mem://); anything else is a local
// directory.
func Open(ctx context.Context, dest string, opts Options) (Sink, error) {
	if task.IsBucketURL(dest) {
		bkt, err := blob.OpenBucket(ctx, dest)
		if err != nil {
			return nil, fmt.Errorf("open bucket %s: %w", dest, err)
		}
		return NewBucket(bkt), nil
	}

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return NewLocal(fs, opts.Atomic), nil
}
