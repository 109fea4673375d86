package transfer

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"s3transfer/pkg/checksum"
	"s3transfer/pkg/s3api"
)

// SinglePartUpload performs a plain PutObject instead of a multipart
// upload. This mirrors the small-object shortcut original_source's
// s3_auto_ranged_put.c takes when an object is smaller than one part, but
// it is deliberately NOT wired into UploadMetaRequest/New: constructing a
// meta-request directly always produces a real CREATE_MPU/UPLOAD_PART/
// COMPLETE_MPU sequence, even for a one-part object, matching this engine's
// documented behavior that callers who want the single-part shortcut must
// ask for it explicitly (see the Client.PutObject convenience wrapper).
func SinglePartUpload(ctx context.Context, client s3api.Client, in UploadInput) (*UploadOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, newError(ErrTransport, "PutObject", "", err)
	}

	req := &s3.PutObjectInput{
		Bucket:      aws.String(in.Bucket),
		Key:         aws.String(in.Key),
		Body:        newBytesReader(body),
		ContentType: aws.String(in.ContentType),
		Metadata:    in.Metadata,
	}
	if in.ChecksumAlgorithm != checksum.None {
		req.ChecksumAlgorithm = types.ChecksumAlgorithm(in.ChecksumAlgorithm)
	}
	if in.SSECustomerAlgorithm != nil {
		req.SSECustomerAlgorithm = in.SSECustomerAlgorithm
		req.SSECustomerKey = in.SSECustomerKey
		req.SSECustomerKeyMD5 = in.SSECustomerKeyMD5
	}

	out, err := client.PutObject(ctx, req)
	if err != nil {
		return nil, newError(ErrTransport, "PutObject", "", err)
	}

	result := &UploadOutput{Bucket: in.Bucket, Key: in.Key}
	if out.ETag != nil {
		result.ETag = dequote(*out.ETag)
	}
	if in.ProgressCallback != nil {
		in.ProgressCallback(int64(len(body)))
	}
	return result, nil
}
