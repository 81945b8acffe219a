package upstream

import "io"

// limitedReadCloser wraps an io.ReadCloser with an io.LimitReader so a
// response body is capped without losing the underlying Close.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}

func newLimitedReadCloser(rc io.ReadCloser, limit int64) io.ReadCloser {
	return &limitedReadCloser{Reader: io.LimitReader(rc, limit), Closer: rc}
}
