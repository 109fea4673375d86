package resume

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tok := New("upload-123", MinUploadPartSize, 7)

	data, err := tok.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != tok {
		t.Errorf("round trip = %+v, want %+v", got, tok)
	}
}

func TestEncodeFieldNames(t *testing.T) {
	tok := New("upload-123", MinUploadPartSize, 3)
	data, err := tok.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"type":"AWS_S3_META_REQUEST_TYPE_PUT_OBJECT","multipart_upload_id":"upload-123","partition_size":5242880,"total_num_parts":3}`
	if string(data) != want {
		t.Errorf("Encode() = %s, want %s", data, want)
	}
}

func TestDecodeRejectsMissingField(t *testing.T) {
	_, err := Decode([]byte(`{"type":"AWS_S3_META_REQUEST_TYPE_PUT_OBJECT","partition_size":5242880,"total_num_parts":3}`))
	if err == nil {
		t.Fatal("expected an error for a token missing multipart_upload_id")
	}
}

func TestDecodeRejectsWrongType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"SOMETHING_ELSE","multipart_upload_id":"u","partition_size":5242880,"total_num_parts":1}`))
	if err == nil {
		t.Fatal("expected an error for an unexpected type discriminator")
	}
}

func TestDecodeRejectsPartitionSizeBelowMinimum(t *testing.T) {
	tok := New("u", MinUploadPartSize, 1)
	tok.PartitionSize = MinUploadPartSize - 1
	data, err := tok.Encode()
	if err == nil {
		t.Fatal("Encode should reject a sub-minimum partition size before Decode ever sees it")
	}
	_ = data

	// Exercise Decode directly too, in case a token was produced out of band.
	raw := []byte(`{"type":"AWS_S3_META_REQUEST_TYPE_PUT_OBJECT","multipart_upload_id":"u","partition_size":1,"total_num_parts":1}`)
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected an error for partition_size below the S3 minimum")
	}
}

func TestDecodeRejectsTooManyParts(t *testing.T) {
	raw := []byte(`{"type":"AWS_S3_META_REQUEST_TYPE_PUT_OBJECT","multipart_upload_id":"u","partition_size":5242880,"total_num_parts":10001}`)
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected an error for total_num_parts above the S3 maximum")
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
