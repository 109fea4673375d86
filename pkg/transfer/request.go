package transfer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"s3transfer/pkg/checksum"
	"s3transfer/pkg/s3api"
)

// PrepareRequest builds req's wire-level payload. Tag-specific: UPLOAD_PART
// and COMPLETE_MPU touch the input stream (via the owning meta-request's
// skip-forward/read routines) and must run on the scheduler's single work
// goroutine; the rest are pure field assembly.
func (req *Request) PrepareRequest(ctx context.Context) error {
	m := req.owner
	req.uploadID = m.currentUploadID()

	switch req.Tag {
	case TagListParts:
		m.mu.Lock()
		req.listToken = m.listPartsContinuationToken
		m.mu.Unlock()

	case TagCreateMPU:
		// Nothing stream-dependent to prepare.

	case TagUploadPart:
		if req.NumTimesPrepared == 0 {
			if err := m.skipForward(req.PartNumber); err != nil {
				return err
			}
			body, sum, err := m.readPart(req.PartNumber)
			if err != nil {
				return err
			}
			req.body = body
			req.checksum = sum
		}

	case TagCompleteMPU:
		if req.NumTimesPrepared == 0 {
			if err := m.skipForward(m.totalNumParts + 1); err != nil {
				return err
			}
		}

	case TagAbortMPU:
		// Nothing stream-dependent to prepare.
	}

	req.NumTimesPrepared++
	return nil
}

func (m *UploadMetaRequest) currentUploadID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploadID
}

// Execute dispatches req against client and records the outcome on req
// itself; call owner.RequestFinished(req, err) afterward to fold it into
// the meta-request's state.
func (req *Request) Execute(ctx context.Context, client s3api.Client) error {
	m := req.owner

	switch req.Tag {
	case TagListParts:
		in := &s3.ListPartsInput{
			Bucket:   aws.String(req.bucket),
			Key:      aws.String(req.key),
			UploadId: aws.String(req.uploadID),
		}
		if req.listToken != "" {
			in.PartNumberMarker = aws.String(req.listToken)
		}
		out, err := client.ListParts(ctx, in)
		req.listOutput = out
		return err

	case TagCreateMPU:
		in := &s3.CreateMultipartUploadInput{
			Bucket:      aws.String(req.bucket),
			Key:         aws.String(req.key),
			ContentType: aws.String(m.in.ContentType),
			Metadata:    m.in.Metadata,
		}
		if m.in.ChecksumAlgorithm != checksum.None {
			in.ChecksumAlgorithm = types.ChecksumAlgorithm(m.in.ChecksumAlgorithm)
		}
		if m.in.SSECustomerAlgorithm != nil {
			in.SSECustomerAlgorithm = m.in.SSECustomerAlgorithm
			in.SSECustomerKey = m.in.SSECustomerKey
			in.SSECustomerKeyMD5 = m.in.SSECustomerKeyMD5
		}
		if m.in.ServerSideEncryption != "" {
			in.ServerSideEncryption = types.ServerSideEncryption(m.in.ServerSideEncryption)
		}
		out, err := client.CreateMultipartUpload(ctx, in)
		if err != nil {
			return err
		}
		if out.UploadId != nil {
			req.uploadID = *out.UploadId
		}
		req.neededHeaders = map[string]string{}
		if out.ServerSideEncryption != "" {
			req.neededHeaders["x-amz-server-side-encryption"] = string(out.ServerSideEncryption)
		}
		if out.SSECustomerAlgorithm != nil {
			req.neededHeaders["x-amz-server-side-encryption-customer-algorithm"] = *out.SSECustomerAlgorithm
		}
		return nil

	case TagUploadPart:
		in := &s3.UploadPartInput{
			Bucket:     aws.String(req.bucket),
			Key:        aws.String(req.key),
			UploadId:   aws.String(req.uploadID),
			PartNumber: aws.Int32(int32(req.PartNumber)),
			Body:       newBytesReader(req.body),
		}
		if m.checksumAlg != checksum.None {
			in.ChecksumAlgorithm = types.ChecksumAlgorithm(m.checksumAlg)
			setPartChecksum(in, m.checksumAlg, req.checksum)
		}
		out, err := client.UploadPart(ctx, in)
		if err != nil {
			return err
		}
		if out.ETag != nil {
			req.etag = dequote(*out.ETag)
		}
		return nil

	case TagCompleteMPU:
		parts := m.completedPartsLocked()
		in := &s3.CompleteMultipartUploadInput{
			Bucket:   aws.String(req.bucket),
			Key:      aws.String(req.key),
			UploadId: aws.String(req.uploadID),
			MultipartUpload: &types.CompletedMultipartUpload{
				Parts: parts,
			},
		}
		out, err := client.CompleteMultipartUpload(ctx, in)
		if err != nil {
			return err
		}
		if out.ETag != nil {
			req.completeETag = dequote(*out.ETag)
		}
		return nil

	case TagAbortMPU:
		in := &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(req.bucket),
			Key:      aws.String(req.key),
			UploadId: aws.String(req.uploadID),
		}
		_, err := client.AbortMultipartUpload(ctx, in)
		return err

	default:
		return fmt.Errorf("transfer: unknown request tag %v", req.Tag)
	}
}

// completedPartsLocked assembles the CompleteMultipartUpload part list from
// etag_list/checksums_list. Safe to call without the lock held for the
// fields it reads here because, by the time COMPLETE_MPU is prepared, no
// other UPLOAD_PART is still in flight (the progress submachine guarantees
// num_parts_completed == total_num_parts first).
func (m *UploadMetaRequest) completedPartsLocked() []types.CompletedPart {
	parts := make([]types.CompletedPart, 0, m.totalNumParts)
	for i := uint32(0); i < m.totalNumParts; i++ {
		cp := types.CompletedPart{
			PartNumber: aws.Int32(int32(i + 1)),
			ETag:       aws.String(m.etagList[i]),
		}
		if m.checksumAlg != checksum.None && i < uint32(len(m.partChecksums)) && m.partChecksums[i] != "" {
			setCompletedPartChecksum(&cp, m.checksumAlg, m.partChecksums[i])
		}
		parts = append(parts, cp)
	}
	return parts
}

func partChecksumValue(p types.Part, alg checksum.Algorithm) string {
	switch alg {
	case checksum.CRC32:
		return aws.ToString(p.ChecksumCRC32)
	case checksum.CRC32C:
		return aws.ToString(p.ChecksumCRC32C)
	case checksum.SHA1:
		return aws.ToString(p.ChecksumSHA1)
	case checksum.SHA256:
		return aws.ToString(p.ChecksumSHA256)
	default:
		return ""
	}
}

func setPartChecksum(in *s3.UploadPartInput, alg checksum.Algorithm, value string) {
	switch alg {
	case checksum.CRC32:
		in.ChecksumCRC32 = aws.String(value)
	case checksum.CRC32C:
		in.ChecksumCRC32C = aws.String(value)
	case checksum.SHA1:
		in.ChecksumSHA1 = aws.String(value)
	case checksum.SHA256:
		in.ChecksumSHA256 = aws.String(value)
	}
}

func setCompletedPartChecksum(cp *types.CompletedPart, alg checksum.Algorithm, value string) {
	switch alg {
	case checksum.CRC32:
		cp.ChecksumCRC32 = aws.String(value)
	case checksum.CRC32C:
		cp.ChecksumCRC32C = aws.String(value)
	case checksum.SHA1:
		cp.ChecksumSHA1 = aws.String(value)
	case checksum.SHA256:
		cp.ChecksumSHA256 = aws.String(value)
	}
}
