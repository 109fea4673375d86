package transfer

import "testing"

func TestFitsSinglePartSmallObject(t *testing.T) {
	in := UploadInput{ContentLength: 1024, PartSize: MinUploadPartSize}
	if !FitsSinglePart(in) {
		t.Error("FitsSinglePart() = false, want true for an object smaller than one part")
	}
}

func TestFitsSinglePartLargeObject(t *testing.T) {
	in := UploadInput{ContentLength: 12 * 1024 * 1024, PartSize: 5 * 1024 * 1024}
	if FitsSinglePart(in) {
		t.Error("FitsSinglePart() = true, want false for an object spanning multiple parts")
	}
}

func TestFitsSinglePartDefaultsPartSize(t *testing.T) {
	in := UploadInput{ContentLength: 1024}
	if !FitsSinglePart(in) {
		t.Error("FitsSinglePart() with PartSize unset should default to MinUploadPartSize and still fit")
	}
}
