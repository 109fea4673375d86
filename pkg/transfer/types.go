// Package transfer implements the per-upload engine: the auto-ranged
// multipart meta-request state machine (C2/C3 of spec.md's Components) that
// drives one object's upload from LIST_PARTS/CREATE_MPU through N
// UPLOAD_PART calls to COMPLETE_MPU or ABORT_MPU, with pause/resume and
// checksum verification built in.
package transfer

import (
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"s3transfer/pkg/checksum"
	"s3transfer/pkg/resume"
)

// Tag identifies which S3 operation a Request represents.
type Tag int

const (
	TagListParts Tag = iota
	TagCreateMPU
	TagUploadPart
	TagCompleteMPU
	TagAbortMPU
)

func (t Tag) String() string {
	switch t {
	case TagListParts:
		return "LIST_PARTS"
	case TagCreateMPU:
		return "CREATE_MPU"
	case TagUploadPart:
		return "UPLOAD_PART"
	case TagCompleteMPU:
		return "COMPLETE_MPU"
	case TagAbortMPU:
		return "ABORT_MPU"
	default:
		return "UNKNOWN"
	}
}

// FinishResult is the meta-request's terminal condition. Exactly one value
// other than FinishNone is ever latched in, per spec.md §5's first-setter-
// wins rule.
type FinishResult int

const (
	FinishNone FinishResult = iota
	FinishSuccess
	FinishFailure
	FinishPaused
	FinishResumeFailed
)

func (f FinishResult) String() string {
	switch f {
	case FinishSuccess:
		return "Success"
	case FinishFailure:
		return "Failure"
	case FinishPaused:
		return "Paused"
	case FinishResumeFailed:
		return "ResumeFailed"
	default:
		return "None"
	}
}

// ProgressCallback reports bytes newly acknowledged by S3 (a part's content
// length, once its UPLOAD_PART succeeds). Invoked outside of any internal
// lock.
type ProgressCallback func(bytesTransferred int64)

// HeadersCallback is handed the subset of response headers the meta-request
// is configured to record (spec.md's "needed response headers", e.g.
// x-amz-server-side-encryption echoed back from CREATE_MPU).
type HeadersCallback func(headers map[string]string)

// UploadInput describes one object to upload. Body is consumed as a
// sequential reader and is never seeked, even if it supports it: resuming
// an upload re-derives position by reading and discarding (skip-forward),
// matching spec.md §4.2.
type UploadInput struct {
	Bucket            string
	Key               string
	Body              io.Reader
	ContentLength     int64
	PartSize          int64
	ChecksumAlgorithm checksum.Algorithm
	Metadata          map[string]string
	ContentType       string

	SSECustomerAlgorithm *string
	SSECustomerKey       *string
	SSECustomerKeyMD5    *string
	ServerSideEncryption string

	ProgressCallback ProgressCallback
	HeadersCallback  HeadersCallback

	// ResumeToken, if non-nil, resumes a previously paused upload rather
	// than starting a fresh CREATE_MPU.
	ResumeToken *resume.Token

	// ResumeCompatible, when true, tells Client.PutObject that this upload
	// must be pausable/resumable even if it would fit in a single part, so
	// its single-request shortcut does not apply. A meta-request started
	// via New directly always drives the full multipart sequence regardless
	// of this field; only PutObject's shortcut reads it.
	ResumeCompatible bool
}

// UploadOutput is handed to the caller's completion callback on success.
type UploadOutput struct {
	Bucket         string
	Key            string
	ETag           string
	UploadID       string
	ObjectChecksum string
}

// DoneFunc is invoked exactly once per meta-request, with either a non-nil
// output and nil error, or a nil output and non-nil error.
type DoneFunc func(*UploadOutput, error)

// Request is one HTTP-level operation a meta-request wants sent: a single
// LIST_PARTS, CREATE_MPU, UPLOAD_PART, COMPLETE_MPU, or ABORT_MPU call. The
// scheduler (pkg/scheduler) owns Request's lifecycle: it asks the owning
// meta-request to prepare it, dispatches it against a pooled client, and
// reports the outcome back via RequestFinished.
type Request struct {
	owner *UploadMetaRequest

	Tag        Tag
	PartNumber uint32 // 1-based; 0 for tags that aren't part-scoped

	// NumTimesPrepared lets PrepareRequest distinguish a first prepare
	// (which must read from the input stream) from a retry (which must
	// replay the already-read body without touching the stream again).
	NumTimesPrepared int

	// AlwaysSend bypasses the scheduler's prepare-budget check (only set on
	// ABORT_MPU, so cleanup isn't starved by an otherwise-saturated
	// prepare pipeline). Dispatch still waits for the in-flight budget.
	AlwaysSend bool

	bucket, key string
	uploadID    string
	body        []byte
	checksum    string
	listToken   string

	err            error
	etag           string
	listOutput     *s3.ListPartsOutput
	completeETag   string
	neededHeaders  map[string]string
}

// BodyLen reports how many bytes PrepareRequest read for this request (0
// until prepared, and for tags with no body). Used by the scheduler to
// report bytes-transferred metrics without exposing the body itself.
func (r *Request) BodyLen() int { return len(r.body) }
