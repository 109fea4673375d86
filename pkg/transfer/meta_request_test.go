package transfer

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"s3transfer/pkg/checksum"
	"s3transfer/pkg/resume"
)

// fakeS3 is a minimal in-memory stand-in for s3api.Client that records call
// order and lets individual tests inject failures, modeling an S3 server
// closely enough to drive the meta-request state machine end to end.
type fakeS3 struct {
	bucket string
	key    string

	parts map[int32][]byte

	failPart    map[int32]error
	failCreate  error
	failComplete error
	failList    error

	calls []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{parts: make(map[int32][]byte), failPart: make(map[int32]error)}
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.calls = append(f.calls, "CREATE_MPU")
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	n := aws.ToInt32(in.PartNumber)
	f.calls = append(f.calls, fmt.Sprintf("UPLOAD_PART(%d)", n))
	if err := f.failPart[n]; err != nil {
		return nil, err
	}
	buf, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.parts[n] = buf
	sum := md5.Sum(buf)
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf(`"%x"`, sum))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.calls = append(f.calls, "COMPLETE_MPU")
	if f.failComplete != nil {
		return nil, f.failComplete
	}
	return &s3.CompleteMultipartUploadOutput{ETag: aws.String(fmt.Sprintf(`"compound-%d"`, len(in.MultipartUpload.Parts)))}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.calls = append(f.calls, "ABORT_MPU")
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) ListParts(ctx context.Context, in *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error) {
	f.calls = append(f.calls, "LIST_PARTS")
	if f.failList != nil {
		return nil, f.failList
	}
	var parts []types.Part
	for n, body := range f.parts {
		sum := md5.Sum(body)
		crc, _ := checksum.Sum(checksum.CRC32, body)
		parts = append(parts, types.Part{
			PartNumber:    aws.Int32(n),
			ETag:          aws.String(fmt.Sprintf(`"%x"`, sum)),
			ChecksumCRC32: aws.String(crc),
		})
	}
	return &s3.ListPartsOutput{Parts: parts, IsTruncated: aws.Bool(false)}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{ETag: aws.String(`"put-object"`)}, nil
}

func (f *fakeS3) ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	return &s3.ListBucketsOutput{}, nil
}

// driveToTerminal manually runs the single-threaded work loop the scheduler
// would otherwise run, against a fake client, until the meta-request
// reaches a terminal condition. The ordered call trace is left in
// client.calls.
func driveToTerminal(t *testing.T, mr *UploadMetaRequest, client *fakeS3) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 10000; i++ {
		if mr.Done() {
			return
		}
		req := mr.Update(false)
		if req == nil {
			if mr.Done() {
				return
			}
			continue
		}
		if err := req.PrepareRequest(ctx); err != nil {
			mr.RequestFinished(req, err)
			continue
		}
		err := req.Execute(ctx, client)
		mr.RequestFinished(req, err)
	}
	t.Fatal("driveToTerminal: exceeded iteration budget without reaching a terminal state")
}

func newInput(body []byte, partSize int64) UploadInput {
	return UploadInput{
		Bucket:        "bucket",
		Key:           "key",
		Body:          bytes.NewReader(body),
		ContentLength: int64(len(body)),
		PartSize:      partSize,
	}
}

func TestScenarioS1ThreePartUpload(t *testing.T) {
	body := make([]byte, 12*1024*1024)
	client := newFakeS3()

	var output *UploadOutput
	mr, err := New(newInput(body, 5*1024*1024), func(out *UploadOutput, err error) {
		require.NoError(t, err)
		output = out
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, mr.totalNumParts)

	driveToTerminal(t, mr, client)
	mr.Finalize()

	require.NotNil(t, output)
	assert.Equal(t, "compound-3", output.ETag)
	assert.Equal(t, []string{"CREATE_MPU", "UPLOAD_PART(1)", "UPLOAD_PART(2)", "UPLOAD_PART(3)", "COMPLETE_MPU"}, client.calls)
	assert.Len(t, client.parts[1], 5*1024*1024)
	assert.Len(t, client.parts[2], 5*1024*1024)
	assert.Len(t, client.parts[3], 2*1024*1024)
}

func TestScenarioS2ExactlyAligned(t *testing.T) {
	body := make([]byte, 10*1024*1024)
	client := newFakeS3()

	mr, err := New(newInput(body, 5*1024*1024), func(out *UploadOutput, err error) {
		require.NoError(t, err)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, mr.totalNumParts)

	driveToTerminal(t, mr, client)
	mr.Finalize()

	assert.Len(t, client.parts[1], 5*1024*1024)
	assert.Len(t, client.parts[2], 5*1024*1024)
}

func TestScenarioS3SinglePartStillMultipart(t *testing.T) {
	body := make([]byte, 1*1024*1024)
	client := newFakeS3()

	mr, err := New(newInput(body, 5*1024*1024), func(out *UploadOutput, err error) {
		require.NoError(t, err)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, mr.totalNumParts)

	driveToTerminal(t, mr, client)
	mr.Finalize()

	assert.Contains(t, client.calls, "CREATE_MPU")
	assert.Contains(t, client.calls, "UPLOAD_PART(1)")
	assert.Contains(t, client.calls, "COMPLETE_MPU")
	assert.Len(t, client.parts[1], 1*1024*1024)
}

func TestScenarioS4MidUploadFailureAborts(t *testing.T) {
	body := make([]byte, 12*1024*1024)
	client := newFakeS3()
	client.failPart[2] = fmt.Errorf("simulated transport error")

	var gotErr error
	mr, err := New(newInput(body, 5*1024*1024), func(out *UploadOutput, err error) {
		gotErr = err
	})
	require.NoError(t, err)

	driveToTerminal(t, mr, client)
	mr.Finalize()

	require.Error(t, gotErr)
	var uerr *UploadError
	require.ErrorAs(t, gotErr, &uerr)
	assert.NotContains(t, client.calls, "COMPLETE_MPU")
	assert.Contains(t, client.calls, "ABORT_MPU")
}

func TestScenarioS5PauseThenResume(t *testing.T) {
	body := make([]byte, 12*1024*1024)
	client := newFakeS3()

	var paused error
	mr, err := New(newInput(body, 5*1024*1024), func(out *UploadOutput, err error) {
		paused = err
	})
	require.NoError(t, err)

	ctx := context.Background()
	// Drive CREATE_MPU and parts 1 and 2 to completion, then pause before
	// part 3 starts.
	for i := 0; i < 3; i++ {
		req := mr.Update(false)
		require.NotNil(t, req)
		require.NoError(t, req.PrepareRequest(ctx))
		require.NoError(t, req.Execute(ctx, client))
		mr.RequestFinished(req, nil)
	}
	mr.Pause()
	driveToTerminal(t, mr, client)
	mr.Finalize()

	require.Error(t, paused)
	var uerr *UploadError
	require.ErrorAs(t, paused, &uerr)
	assert.Equal(t, ErrPaused, uerr.Code)
	assert.NotContains(t, client.calls, "COMPLETE_MPU")
	assert.NotContains(t, client.calls, "ABORT_MPU")

	tok, ok := mr.Token()
	require.True(t, ok)
	assert.EqualValues(t, 3, tok.TotalNumParts)
	assert.EqualValues(t, 5*1024*1024, tok.PartitionSize)

	// Resume: fresh meta-request, same stream, list-parts reconciles what's
	// already on the server.
	resumeIn := newInput(body, 5*1024*1024)
	resumeIn.ResumeToken = &tok

	var resumedOutput *UploadOutput
	mr2, err := New(resumeIn, func(out *UploadOutput, err error) {
		require.NoError(t, err)
		resumedOutput = out
	})
	require.NoError(t, err)

	client.calls = nil
	driveToTerminal(t, mr2, client)
	mr2.Finalize()

	require.NotNil(t, resumedOutput)
	assert.Contains(t, client.calls, "LIST_PARTS")
	assert.NotContains(t, client.calls, "CREATE_MPU")
	// Parts already on the server must not be re-uploaded.
	assert.NotContains(t, client.calls, "UPLOAD_PART(1)")
	assert.NotContains(t, client.calls, "UPLOAD_PART(2)")
}

func TestScenarioS6TamperedStreamMismatch(t *testing.T) {
	body := make([]byte, 12*1024*1024)
	client := newFakeS3()

	in := newInput(body, 5*1024*1024)
	in.ChecksumAlgorithm = checksum.CRC32
	mr, err := New(in, func(out *UploadOutput, err error) {})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		req := mr.Update(false)
		require.NotNil(t, req)
		require.NoError(t, req.PrepareRequest(ctx))
		require.NoError(t, req.Execute(ctx, client))
		mr.RequestFinished(req, nil)
	}
	mr.Pause()
	driveToTerminal(t, mr, client)
	mr.Finalize()
	tok, _ := mr.Token()

	tampered := append([]byte(nil), body...)
	tampered[3*1024*1024] ^= 0xFF

	resumeIn := newInput(tampered, 5*1024*1024)
	resumeIn.ResumeToken = &tok
	resumeIn.ChecksumAlgorithm = checksum.CRC32

	var resumeErr error
	mr2, err := New(resumeIn, func(out *UploadOutput, err error) {
		resumeErr = err
	})
	require.NoError(t, err)

	client.calls = nil
	driveToTerminal(t, mr2, client)
	mr2.Finalize()

	require.Error(t, resumeErr)
	var uerr *UploadError
	require.ErrorAs(t, resumeErr, &uerr)
	assert.Equal(t, ErrResumedPartChecksumMismatch, uerr.Code)
	assert.NotContains(t, client.calls, "COMPLETE_MPU")
	assert.NotContains(t, client.calls, "ABORT_MPU")
}

func TestResumeTokenPartitionSizeMismatchRejected(t *testing.T) {
	body := make([]byte, 12*1024*1024)
	tok := resume.New("upload-1", 8*1024*1024, 2)

	in := newInput(body, 5*1024*1024)
	in.ResumeToken = &tok

	_, err := New(in, func(*UploadOutput, error) {})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "partition_size"))
}

func TestObjectChecksumComputedAcrossParts(t *testing.T) {
	body := make([]byte, 12*1024*1024)
	client := newFakeS3()

	in := newInput(body, 5*1024*1024)
	in.ChecksumAlgorithm = checksum.CRC32

	var output *UploadOutput
	mr, err := New(in, func(out *UploadOutput, err error) {
		require.NoError(t, err)
		output = out
	})
	require.NoError(t, err)

	driveToTerminal(t, mr, client)
	mr.Finalize()

	require.NotNil(t, output)
	assert.NotEmpty(t, output.ObjectChecksum)

	want, err := checksum.CompositeSum(checksum.CRC32, mr.partChecksums)
	require.NoError(t, err)
	assert.Equal(t, want, output.ObjectChecksum)
}

func TestObjectChecksumEmptyWithoutAlgorithm(t *testing.T) {
	body := make([]byte, 1024)
	client := newFakeS3()

	var output *UploadOutput
	mr, err := New(newInput(body, MinUploadPartSize), func(out *UploadOutput, err error) {
		require.NoError(t, err)
		output = out
	})
	require.NoError(t, err)

	driveToTerminal(t, mr, client)
	mr.Finalize()

	require.NotNil(t, output)
	assert.Empty(t, output.ObjectChecksum)
}

func TestSingleCompletionCallback(t *testing.T) {
	body := make([]byte, 1024)
	client := newFakeS3()

	calls := 0
	mr, err := New(newInput(body, MinUploadPartSize), func(out *UploadOutput, err error) {
		calls++
	})
	require.NoError(t, err)

	driveToTerminal(t, mr, client)
	mr.Finalize()
	mr.Finalize()
	mr.Finalize()

	assert.Equal(t, 1, calls)
}
