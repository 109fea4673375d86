package transfer

import "fmt"

const (
	// MinUploadPartSize is S3's floor on multipart part size (except for the
	// final part). Duplicated in pkg/resume.MinUploadPartSize; see the
	// comment on that constant for why it isn't imported from here instead.
	MinUploadPartSize int64 = 5 * 1024 * 1024

	// MaxUploadParts is S3's ceiling on the number of parts in one upload.
	MaxUploadParts uint32 = 10000

	// MaxPartSize is S3's ceiling on a single part's size.
	MaxPartSize int64 = 5 * 1024 * 1024 * 1024
)

// adjustPartSize grows partSize just enough that contentLength divided by it
// does not exceed MaxUploadParts, ported from chanzuckerberg-aws-sdk-go-v2's
// Uploader.initSize overflow-avoidance logic: rather than rejecting a
// caller-chosen part size outright, the engine scales it up to the smallest
// size (ceil(contentLength/MaxUploadParts)) that still fits within the
// part-count ceiling.
func adjustPartSize(contentLength, partSize int64) int64 {
	if partSize <= 0 || contentLength <= 0 {
		return partSize
	}
	numParts := ceilDiv(contentLength, partSize)
	if numParts <= int64(MaxUploadParts) {
		return partSize
	}
	// Grow partSize so ceil(contentLength/partSize) == MaxUploadParts.
	adjusted := ceilDiv(contentLength, int64(MaxUploadParts))
	if adjusted < partSize {
		adjusted = partSize
	}
	return adjusted
}

// FitsSinglePart reports whether in would occupy exactly one part under its
// own (or the default) part size. Client.PutObject uses this to decide
// whether its single-request shortcut applies, without constructing a full
// UploadMetaRequest.
func FitsSinglePart(in UploadInput) bool {
	partSize := in.PartSize
	if partSize <= 0 {
		partSize = MinUploadPartSize
	}
	partSize = adjustPartSize(in.ContentLength, partSize)
	return totalNumParts(in.ContentLength, partSize) == 1
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// validatePartSize applies spec.md's size-budget invariants once partSize
// has already been adjusted for the part-count ceiling.
func validatePartSize(partSize int64) error {
	if partSize < MinUploadPartSize {
		return fmt.Errorf("transfer: part_size %d below minimum %d", partSize, MinUploadPartSize)
	}
	if partSize > MaxPartSize {
		return fmt.Errorf("transfer: part_size %d exceeds maximum %d", partSize, MaxPartSize)
	}
	return nil
}

// totalNumParts computes the number of parts for a stream of the given
// length split into partSize-sized parts, with the final part absorbing the
// remainder. A zero-length object still uploads as exactly one (empty) part,
// matching spec.md §8's requirement that construction never yields zero
// parts.
func totalNumParts(contentLength, partSize int64) uint32 {
	if contentLength <= 0 {
		return 1
	}
	return uint32(ceilDiv(contentLength, partSize))
}

// partByteRange returns the size in bytes of part number n (1-based) out of
// totalParts, given the full content length and nominal part size.
func partByteRange(partNumber uint32, totalParts uint32, contentLength, partSize int64) int64 {
	if partNumber == totalParts {
		remainder := contentLength - int64(totalParts-1)*partSize
		if remainder <= 0 {
			// Only a zero-length object gets here: its single part is empty.
			return 0
		}
		return remainder
	}
	return partSize
}
