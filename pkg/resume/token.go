// Package resume implements the Resume codec (C5): the pause-token wire
// format from spec.md §6 and its persistence, independent of the network
// reconciliation (list-parts) that pkg/transfer performs once a token has
// been decoded and validated.
package resume

import (
	"encoding/json"
	"fmt"
)

// metaRequestType is the literal discriminator spec.md §6 requires in every
// token. The engine supports exactly one meta-request type today.
const metaRequestType = "AWS_S3_META_REQUEST_TYPE_PUT_OBJECT"

// MinUploadPartSize mirrors pkg/transfer.MinUploadPartSize; duplicated as a
// constant here so this package has no dependency on pkg/transfer
// (the codec is a leaf: it validates shape, not S3 semantics beyond the
// documented rejection rules).
const MinUploadPartSize int64 = 5 * 1024 * 1024

// MaxUploadParts mirrors pkg/transfer.MaxUploadParts.
const MaxUploadParts uint32 = 10000

// Token is the JSON pause-token format defined in spec.md §6, field names
// and all.
type Token struct {
	Type              string `json:"type"`
	MultipartUploadID string `json:"multipart_upload_id"`
	PartitionSize     int64  `json:"partition_size"`
	TotalNumParts     uint32 `json:"total_num_parts"`
}

// New builds a valid token for an in-progress upload.
func New(uploadID string, partitionSize int64, totalNumParts uint32) Token {
	return Token{
		Type:              metaRequestType,
		MultipartUploadID: uploadID,
		PartitionSize:     partitionSize,
		TotalNumParts:     totalNumParts,
	}
}

// Encode serializes the token to JSON for the caller to persist.
func (t Token) Encode() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(t)
}

// Decode parses and validates a persisted pause token, applying every
// rejection rule from spec.md §6: missing fields, type mismatch,
// partition_size below the S3 minimum, and total_num_parts above the S3
// maximum.
func Decode(data []byte) (Token, error) {
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return Token{}, fmt.Errorf("resume: decode token: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Token{}, err
	}
	return t, nil
}

// Validate checks the token against spec.md §6's rejection rules. It does
// not check total_num_parts against the caller's content_length/part_size;
// that re-derivation and its InvalidArgument-on-mismatch happens in
// pkg/transfer, which has both the token and the caller's supplied stream.
func (t Token) Validate() error {
	if t.Type == "" || t.MultipartUploadID == "" || t.PartitionSize == 0 || t.TotalNumParts == 0 {
		return fmt.Errorf("resume: invalid token: missing required field")
	}
	if t.Type != metaRequestType {
		return fmt.Errorf("resume: invalid token: unexpected type %q", t.Type)
	}
	if t.PartitionSize < MinUploadPartSize {
		return fmt.Errorf("resume: invalid token: partition_size %d below minimum %d", t.PartitionSize, MinUploadPartSize)
	}
	if t.TotalNumParts > MaxUploadParts {
		return fmt.Errorf("resume: invalid token: total_num_parts %d exceeds maximum %d", t.TotalNumParts, MaxUploadParts)
	}
	return nil
}
