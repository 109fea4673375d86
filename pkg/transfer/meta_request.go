package transfer

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"s3transfer/pkg/checksum"
	"s3transfer/pkg/resume"
)

// UploadMetaRequest drives one object's auto-ranged multipart upload. Its
// fields fall into the three categories spec.md's Data Model describes:
//
//   - synced: guarded by mu, safe to touch from any goroutine (Pause,
//     Token, RequestFinished on a dispatch goroutine).
//   - threaded: touched only from Update and PrepareRequest, which the
//     scheduler runs on its single work goroutine. RequestFinished, which
//     may run concurrently on a dispatch goroutine, does not touch them.
//   - prepare-time scratch: populated as parts are read from the input
//     stream and consumed again when COMPLETE_MPU is built; never touched
//     outside PrepareRequest/RequestFinished. Because those two can run
//     concurrently, writes made while parts are in flight take mu.
type UploadMetaRequest struct {
	// id is a process-local identifier for correlating this upload across
	// logs, /status output, and metrics labels. It never touches the wire.
	id string

	in     UploadInput
	onDone DoneFunc

	contentLength int64
	partSize      int64
	checksumAlg   checksum.Algorithm

	mu                sync.Mutex
	totalNumParts     uint32
	numPartsSent      uint32
	numPartsCompleted uint32
	numPartsSuccessful uint32
	numPartsFailed    uint32

	listPartsSent, listPartsCompleted     bool
	createMPUSent, createMPUCompleted     bool
	completeMPUSent, completeMPUCompleted bool
	abortMPUSent, abortMPUCompleted       bool

	uploadID                    string
	listPartsContinuationToken  string
	neededResponseHeaders       map[string]string
	etagList                    []string // index i holds part i+1's ETag, "" if not yet known
	objectChecksum              string

	finishResult FinishResult
	finishErr    error
	// suppressAbort is latched alongside finishResult for terminal errors
	// that must preserve server-side state rather than clean it up.
	// ResumedPartChecksumMismatch is the one Failure-classified error that
	// behaves this way: spec.md §8 scenario S6 calls for no ABORT_MPU so
	// the mismatch can be investigated, even though §7's general
	// propagation policy text says otherwise for "all other terminal
	// errors"; see DESIGN.md for why the literal scenario wins here.
	suppressAbort   bool
	readyToFinalize bool
	finalizeOnce    sync.Once
	output          *UploadOutput

	// threaded (scheduler-goroutine only)
	nextPartNumber         uint32
	numPartsReadFromStream uint32

	// prepare-time scratch (scheduler-goroutine only)
	partChecksums []string
}

// New constructs a fresh (non-resumed) meta-request.
func New(in UploadInput, onDone DoneFunc) (*UploadMetaRequest, error) {
	if in.Bucket == "" || in.Key == "" {
		return nil, newError(ErrInvalidArgument, "New", "", fmt.Errorf("bucket and key are required"))
	}
	if in.Body == nil {
		return nil, newError(ErrInvalidArgument, "New", "", fmt.Errorf("body is required"))
	}
	if in.PartSize <= 0 {
		in.PartSize = MinUploadPartSize
	}

	partSize := adjustPartSize(in.ContentLength, in.PartSize)
	if err := validatePartSize(partSize); err != nil {
		return nil, newError(ErrInvalidArgument, "New", "", err)
	}

	n := totalNumParts(in.ContentLength, partSize)

	m := &UploadMetaRequest{
		id:            uuid.NewString(),
		in:            in,
		onDone:        onDone,
		contentLength: in.ContentLength,
		partSize:      partSize,
		checksumAlg:   in.ChecksumAlgorithm,
		totalNumParts: n,
		etagList:      make([]string, n),
		partChecksums: make([]string, n),
		nextPartNumber: 1,
	}

	if in.ResumeToken != nil {
		if err := m.applyResumeToken(*in.ResumeToken); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *UploadMetaRequest) applyResumeToken(t resume.Token) error {
	if t.PartitionSize != m.partSize {
		return newError(ErrInvalidArgument, "New", t.MultipartUploadID,
			fmt.Errorf("resume token partition_size %d does not match configured part_size %d", t.PartitionSize, m.partSize))
	}
	if t.TotalNumParts != m.totalNumParts {
		return newError(ErrInvalidArgument, "New", t.MultipartUploadID,
			fmt.Errorf("resume token total_num_parts %d does not match re-derived %d", t.TotalNumParts, m.totalNumParts))
	}
	m.uploadID = t.MultipartUploadID
	m.createMPUSent = true
	m.createMPUCompleted = true
	return nil
}

// Pause requests a graceful stop: in-flight parts finish, no new parts are
// sent, and the meta-request finalizes with FinishPaused. First-setter-wins
// against a concurrent Failure/Success.
func (m *UploadMetaRequest) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setFinishLocked(FinishPaused, nil)
}

// Token returns the pause token for an upload that has a CREATE_MPU (or
// resumed) upload id, suitable for persisting via pkg/resume.Store.
func (m *UploadMetaRequest) Token() (resume.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadID == "" {
		return resume.Token{}, false
	}
	return resume.New(m.uploadID, m.partSize, m.totalNumParts), true
}

func (m *UploadMetaRequest) setFinishLocked(result FinishResult, err error) {
	if m.finishResult != FinishNone {
		return
	}
	m.finishResult = result
	m.finishErr = err
	if uerr, ok := err.(*UploadError); ok {
		switch uerr.Code {
		case ErrResumedPartChecksumMismatch:
			m.suppressAbort = true
		case ErrResumeFailed:
			// Skip-forward could not advance the input stream.
			if result == FinishFailure {
				m.finishResult = FinishResumeFailed
			}
		}
	}
}

// Update is the progress/termination submachine from spec.md §4.1, invoked
// by the scheduler's work loop once per active meta-request per pass. It
// returns the next Request to prepare and dispatch, or nil if there is
// nothing to send right now (waiting on the network, or fully retired).
func (m *UploadMetaRequest) Update(conservative bool) *Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finishResult != FinishNone {
		return m.updateTerminationLocked()
	}
	return m.updateProgressLocked(conservative)
}

func (m *UploadMetaRequest) updateProgressLocked(conservative bool) *Request {
	switch {
	case m.in.ResumeToken != nil && !m.listPartsSent:
		m.listPartsSent = true
		return m.newRequest(TagListParts, 0)

	case m.listPartsSent && !m.listPartsCompleted:
		return nil

	case !m.createMPUSent:
		m.createMPUSent = true
		return m.newRequest(TagCreateMPU, 0)

	case !m.createMPUCompleted:
		return nil

	case m.numPartsSent < m.totalNumParts:
		for m.nextPartNumber <= m.totalNumParts && m.etagList[m.nextPartNumber-1] != "" {
			m.nextPartNumber++
		}
		if m.nextPartNumber > m.totalNumParts {
			return nil
		}
		if conservative && m.numPartsSent > m.numPartsCompleted {
			return nil
		}
		part := m.nextPartNumber
		m.nextPartNumber++
		m.numPartsSent++
		return m.newRequest(TagUploadPart, part)

	case m.numPartsCompleted < m.totalNumParts:
		return nil

	case !m.completeMPUSent:
		m.completeMPUSent = true
		return m.newRequest(TagCompleteMPU, 0)

	case !m.completeMPUCompleted:
		return nil

	default:
		m.setFinishLocked(FinishSuccess, nil)
		return nil
	}
}

func (m *UploadMetaRequest) updateTerminationLocked() *Request {
	switch {
	case !m.createMPUSent:
		// Never even started: nothing server-side to clean up.
		m.readyToFinalize = true
		return nil

	case !m.createMPUCompleted:
		return nil

	case m.numPartsCompleted < m.numPartsSent:
		return nil

	case m.completeMPUSent && !m.completeMPUCompleted:
		return nil

	case m.finishResult == FinishPaused || m.finishResult == FinishResumeFailed || m.suppressAbort:
		// Preserve server-side parts for a future resume/investigation:
		// never abort.
		m.readyToFinalize = true
		return nil

	case m.completeMPUCompleted:
		// COMPLETE_MPU already landed; the upload exists in S3, there is
		// nothing to abort regardless of why finish_result got set.
		m.readyToFinalize = true
		return nil

	case m.uploadID == "":
		m.readyToFinalize = true
		return nil

	case !m.abortMPUSent:
		m.abortMPUSent = true
		req := m.newRequest(TagAbortMPU, 0)
		req.AlwaysSend = true
		return req

	case !m.abortMPUCompleted:
		return nil

	default:
		m.readyToFinalize = true
		return nil
	}
}

func (m *UploadMetaRequest) newRequest(tag Tag, partNumber uint32) *Request {
	return &Request{owner: m, Tag: tag, PartNumber: partNumber, bucket: m.in.Bucket, key: m.in.Key}
}

// ID returns this upload's process-local tracking identifier.
func (m *UploadMetaRequest) ID() string { return m.id }

// Done reports whether the termination submachine has reached a state where
// Finalize can be invoked.
func (m *UploadMetaRequest) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyToFinalize
}

// Finalize invokes the caller's completion callback exactly once.
func (m *UploadMetaRequest) Finalize() {
	m.finalizeOnce.Do(func() {
		m.mu.Lock()
		result, err, out := m.finishResult, m.finishErr, m.output
		m.mu.Unlock()

		if m.onDone == nil {
			return
		}
		if result == FinishSuccess && out != nil {
			m.onDone(out, nil)
			return
		}
		m.onDone(nil, m.toUploadError(result, err))
	})
}

func (m *UploadMetaRequest) toUploadError(result FinishResult, cause error) error {
	if uerr, ok := cause.(*UploadError); ok {
		// Already carries a specific ErrorCode (e.g. a skip-forward
		// checksum mismatch); don't obscure it behind a generic wrapper.
		return uerr
	}

	code := ErrTransport
	switch result {
	case FinishPaused:
		code = ErrPaused
	case FinishResumeFailed:
		code = ErrResumeFailed
	}
	if cause == nil {
		cause = fmt.Errorf("upload did not complete: %s", result)
	}
	return newError(code, "Upload", m.uploadID, cause)
}

// RequestFinished records the outcome of one completed Request. Invoked by
// the scheduler from the goroutine that executed req, or from the work
// goroutine when preparing or dispatching req failed; it holds mu while it
// updates state.
func (m *UploadMetaRequest) RequestFinished(req *Request, opErr error) {
	m.mu.Lock()

	var progress int64
	var headersToReport map[string]string

	switch req.Tag {
	case TagListParts:
		m.finishListParts(req, opErr)

	case TagCreateMPU:
		m.createMPUCompleted = true
		if opErr != nil {
			m.setFinishLocked(FinishFailure, opErr)
			break
		}
		if req.uploadID == "" {
			m.setFinishLocked(FinishFailure, newError(ErrMissingUploadID, "CreateMultipartUpload", "", nil))
			break
		}
		m.uploadID = req.uploadID
		if req.neededHeaders != nil {
			m.neededResponseHeaders = req.neededHeaders
			headersToReport = req.neededHeaders
		}

	case TagUploadPart:
		m.numPartsCompleted++
		if opErr != nil {
			m.numPartsFailed++
			m.setFinishLocked(FinishFailure, opErr)
			break
		}
		m.etagList[req.PartNumber-1] = req.etag
		m.numPartsSuccessful++
		progress = partByteRange(req.PartNumber, m.totalNumParts, m.contentLength, m.partSize)
		if m.checksumAlg != checksum.None {
			if sum, err := checksum.CompositeSum(m.checksumAlg, m.partChecksums); err == nil {
				m.objectChecksum = sum
			}
		}

	case TagCompleteMPU:
		m.completeMPUCompleted = true
		if opErr != nil {
			m.setFinishLocked(FinishFailure, opErr)
			break
		}
		m.output = &UploadOutput{
			Bucket:         m.in.Bucket,
			Key:            m.in.Key,
			ETag:           req.completeETag,
			UploadID:       m.uploadID,
			ObjectChecksum: m.objectChecksum,
		}

	case TagAbortMPU:
		m.abortMPUCompleted = true
		// opErr is logged by the caller, if at all; the meta-request's
		// finish_result was already latched before ABORT_MPU was issued.
	}

	cb := m.in.ProgressCallback
	hcb := m.in.HeadersCallback
	m.mu.Unlock()

	if progress > 0 && cb != nil {
		cb(progress)
	}
	if headersToReport != nil && hcb != nil {
		hcb(headersToReport)
	}
}

// finishListParts must be called with mu held.
func (m *UploadMetaRequest) finishListParts(req *Request, opErr error) {
	if opErr != nil {
		m.listPartsCompleted = true
		m.setFinishLocked(FinishFailure, newError(ErrListPartsParseFailed, "ListParts", m.in.ResumeToken.MultipartUploadID, opErr))
		return
	}

	out := req.listOutput
	if out == nil {
		m.listPartsCompleted = true
		m.setFinishLocked(FinishFailure, newError(ErrListPartsParseFailed, "ListParts", "", fmt.Errorf("empty response")))
		return
	}

	for _, p := range out.Parts {
		if p.PartNumber == nil || p.ETag == nil {
			continue
		}
		idx := int(*p.PartNumber) - 1
		if idx < 0 || idx >= len(m.etagList) {
			continue
		}
		m.etagList[idx] = dequote(*p.ETag)
		if cs := partChecksumValue(p, m.checksumAlg); cs != "" {
			m.partChecksums[idx] = cs
		}
	}

	if out.IsTruncated != nil && *out.IsTruncated {
		if out.NextPartNumberMarker != nil {
			m.listPartsContinuationToken = *out.NextPartNumberMarker
		}
		// Re-arm step 1 of the progress submachine so Update issues the
		// next page; prepareRequest reads the continuation token back out.
		m.listPartsSent = false
		return
	}

	m.listPartsCompleted = true
	for i := range m.etagList {
		if m.etagList[i] != "" {
			m.numPartsSent++
			m.numPartsCompleted++
			m.numPartsSuccessful++
		}
	}
	if m.uploadID == "" {
		m.uploadID = m.in.ResumeToken.MultipartUploadID
	}
}

func dequote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// skipForward reads and discards bytes for every part strictly below
// uptoPartNumber that hasn't already been consumed from the input stream,
// verifying each against any checksum recovered by list-parts. Implements
// spec.md §4.2; runs on the scheduler goroutine only.
func (m *UploadMetaRequest) skipForward(uptoPartNumber uint32) error {
	buf := make([]byte, 32*1024)
	for m.numPartsReadFromStream+1 < uptoPartNumber {
		part := m.numPartsReadFromStream + 1
		size := partByteRange(part, m.totalNumParts, m.contentLength, m.partSize)

		var verifier *checksum.Verifier
		expected := ""
		if part-1 < uint32(len(m.partChecksums)) {
			expected = m.partChecksums[part-1]
		}
		if m.checksumAlg != checksum.None {
			verifier = checksum.NewVerifier(m.checksumAlg, expected)
		}

		remaining := size
		for remaining > 0 {
			n := int64(len(buf))
			if remaining < n {
				n = remaining
			}
			read, err := io.ReadFull(m.in.Body, buf[:n])
			if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
				return newError(ErrResumeFailed, "SkipForward", m.uploadID, err)
			}
			if verifier != nil {
				verifier.Write(buf[:read])
			}
			remaining -= int64(read)
			if read == 0 {
				break
			}
		}
		if verifier != nil && !verifier.Matches() {
			return newError(ErrResumedPartChecksumMismatch, "SkipForward", m.uploadID,
				fmt.Errorf("part %d checksum mismatch on resume", part))
		}
		m.numPartsReadFromStream++
	}
	return nil
}

// readPart reads exactly one part's worth of bytes (the current position in
// the stream must already be at the start of partNumber, via skipForward).
func (m *UploadMetaRequest) readPart(partNumber uint32) ([]byte, string, error) {
	size := partByteRange(partNumber, m.totalNumParts, m.contentLength, m.partSize)
	buf := make([]byte, size)
	n, err := io.ReadFull(m.in.Body, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, "", newError(ErrTransport, "ReadPart", m.uploadID, err)
	}
	buf = buf[:n]
	m.numPartsReadFromStream++

	var sum string
	if m.checksumAlg != checksum.None {
		sum, _ = checksum.Sum(m.checksumAlg, buf)
		m.mu.Lock()
		m.partChecksums[partNumber-1] = sum
		m.mu.Unlock()
	}
	return buf, sum, nil
}
