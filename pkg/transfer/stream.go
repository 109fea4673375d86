package transfer

import "bytes"

// newBytesReader wraps a prepared part body for the SDK call. Kept as a
// named helper rather than an inline bytes.NewReader so retried requests
// (NumTimesPrepared > 0) obviously get a fresh reader over the same bytes,
// never the exhausted one from a prior attempt.
func newBytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
