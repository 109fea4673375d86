package checksum

import "testing"

func TestSumKnownCRC32(t *testing.T) {
	// CRC32 (IEEE) of "123456789" is the textbook check value 0xCBF43926.
	got, err := Sum(CRC32, []byte("123456789"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	want := "y/Q5Jg==" // base64(0xCBF43926 big-endian)
	if got != want {
		t.Errorf("Sum(CRC32, \"123456789\") = %q, want %q", got, want)
	}
}

func TestSumUnsupportedAlgorithm(t *testing.T) {
	if _, err := Sum(Algorithm("MD5"), []byte("x")); err == nil {
		t.Fatal("expected an error for an unsupported algorithm")
	}
}

func TestHeaderName(t *testing.T) {
	cases := map[Algorithm]string{
		CRC32:  "x-amz-checksum-crc32",
		CRC32C: "x-amz-checksum-crc32c",
		SHA1:   "x-amz-checksum-sha1",
		SHA256: "x-amz-checksum-sha256",
		None:   "",
	}
	for alg, want := range cases {
		if got := alg.HeaderName(); got != want {
			t.Errorf("%s.HeaderName() = %q, want %q", alg, got, want)
		}
	}
}

func TestCompositeSumStopsAtFirstMissingPart(t *testing.T) {
	p1, err := Sum(CRC32, []byte("part one"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	p2, err := Sum(CRC32, []byte("part two"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	full, err := CompositeSum(CRC32, []string{p1, p2})
	if err != nil {
		t.Fatalf("CompositeSum: %v", err)
	}
	prefix, err := CompositeSum(CRC32, []string{p1, ""})
	if err != nil {
		t.Fatalf("CompositeSum: %v", err)
	}
	only1, err := CompositeSum(CRC32, []string{p1})
	if err != nil {
		t.Fatalf("CompositeSum: %v", err)
	}
	if prefix != only1 {
		t.Error("CompositeSum should stop at the first empty entry rather than treating it as data")
	}
	if full == prefix {
		t.Error("CompositeSum of all parts should differ from CompositeSum of a strict prefix")
	}
}

func TestCompositeSumUnsupportedAlgorithm(t *testing.T) {
	if _, err := CompositeSum(Algorithm("MD5"), []string{"x"}); err == nil {
		t.Fatal("expected an error for an unsupported algorithm")
	}
}

func TestVerifierMatches(t *testing.T) {
	body := []byte("the quick brown fox jumps over the lazy dog")
	expected, err := Sum(CRC32C, body)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	v := NewVerifier(CRC32C, expected)
	if _, err := v.Write(body[:10]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := v.Write(body[10:]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !v.Matches() {
		t.Error("Matches() = false, want true for identical bytes")
	}
}

func TestVerifierMismatch(t *testing.T) {
	expected, err := Sum(SHA256, []byte("original"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	v := NewVerifier(SHA256, expected)
	if _, err := v.Write([]byte("tampered")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if v.Matches() {
		t.Error("Matches() = true, want false for different bytes")
	}
}

func TestVerifierNoExpectedAlwaysMatches(t *testing.T) {
	v := NewVerifier(CRC32, "")
	if _, err := v.Write([]byte("anything")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !v.Matches() {
		t.Error("Matches() with no expected checksum should trivially pass")
	}
}
