// Package compress implements the optional Compression Adapter of spec
// §4.8: a thin gzip wrapper placed between a format encoder and its
// sink, transparent to both, that never buffers more than gzip's own
// window.
package compress

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/column-stream/exportd/internal/export/domain"
)

// Writer wraps an underlying sink with gzip at the standard library's
// default compression level. It satisfies io.WriteCloser so encoders
// see an ordinary io.Writer regardless of whether compression is
// requested.
type Writer struct {
	gz *gzip.Writer
}

// NewWriter returns a Writer streaming gzip-compressed bytes into dst.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{gz: gzip.NewWriter(dst)}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.gz.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: gzip write: %v", domain.ErrSinkFailed, err)
	}
	return n, nil
}

// Close flushes any buffered gzip data and writes the stream trailer.
// It does not close the underlying sink — the pipeline driver owns
// that, since an HTTP response writer must not be closed twice.
func (w *Writer) Close() error {
	if err := w.gz.Close(); err != nil {
		return fmt.Errorf("%w: gzip close: %v", domain.ErrSinkFailed, err)
	}
	return nil
}

// Sink selects between a plain passthrough and a gzip-wrapping Writer
// based on the requested compression, so pipeline code never branches
// on domain.Compression itself.
func Sink(dst io.Writer, compression domain.Compression) (io.WriteCloser, error) {
	switch compression {
	case domain.CompressionNone:
		return nopCloser{dst}, nil
	case domain.CompressionGzip:
		return NewWriter(dst), nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %q", domain.ErrSinkFailed, compression)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
