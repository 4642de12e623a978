package sink

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
)

// Bucket writes objects into a gocloud bucket. Object keys are the
// slash-separated relative paths, so there are no directories to create.
type Bucket struct {
	bucket *blob.Bucket
}

// NewBucket wraps an open bucket. The sink takes ownership of it.
func NewBucket(b *blob.Bucket) *Bucket {
	return &Bucket{bucket: b}
}

// Write implements Sink. The object only becomes visible when the copy
// succeeds.
func (b *Bucket) Write(ctx context.Context, name string, r io.Reader) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := b.bucket.NewWriter(ctx, name, nil)
	if err != nil {
		return 0, fmt.Errorf("open object %s: %w", name, err)
	}

	n, err := io.Copy(w, r)
	if err != nil {
		// Cancelling before Close aborts the upload.
		cancel()
		w.Close()
		return n, fmt.Errorf("write object %s: %w", name, err)
	}

	if err := w.Close(); err != nil {
		return n, fmt.Errorf("close object %s: %w", name, err)
	}
	return n, nil
}

// Close implements Sink.
func (b *Bucket) Close() error {
	return b.bucket.Close()
}
