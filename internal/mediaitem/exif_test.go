package mediaitem

import (
	"encoding/binary"
	"testing"
)

func TestReadRationalComputesRatio(t *testing.T) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], 10)
	binary.LittleEndian.PutUint32(b[4:8], 2)
	if got := readRational(b, binary.LittleEndian); got != 5.0 {
		t.Errorf("readRational = %v, want 5.0", got)
	}
}

func TestReadRationalGuardsZeroDenominator(t *testing.T) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], 10)
	binary.LittleEndian.PutUint32(b[4:8], 0)
	if got := readRational(b, binary.LittleEndian); got != 0 {
		t.Errorf("readRational with zero denominator = %v, want 0", got)
	}
}

func TestReadRationalRespectsBigEndianOrder(t *testing.T) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], 1)
	binary.BigEndian.PutUint32(b[4:8], 4)

	// Decoding big-endian-encoded bytes as little-endian must not produce
	// the same (correct) ratio, proving the order argument is load-bearing.
	wrong := readRational(b, binary.LittleEndian)
	right := readRational(b, binary.BigEndian)
	if right != 0.25 {
		t.Errorf("readRational(BigEndian) = %v, want 0.25", right)
	}
	if wrong == right {
		t.Error("expected byte order to change the decoded ratio for this input")
	}
}

func TestReadASCIIReturnsEmptyForNonASCIIType(t *testing.T) {
	tiff := make([]byte, 16)
	valOffset := make([]byte, 4)
	if got := readASCII(tiff, binary.LittleEndian, 3 /* SHORT, not ASCII */, valOffset); got != "" {
		t.Errorf("readASCII on a non-ASCII type = %q, want empty", got)
	}
}

func TestReadASCIIReadsOffsetString(t *testing.T) {
	tiff := make([]byte, 32)
	copy(tiff[8:], []byte("Canon\x00"))
	valOffset := make([]byte, 4)
	binary.LittleEndian.PutUint32(valOffset, 8)

	got := readASCII(tiff, binary.LittleEndian, typeASCII, valOffset)
	if got != "Canon" {
		t.Errorf("readASCII = %q, want Canon", got)
	}
}

func TestParseTIFFRejectsUnknownByteOrderMarker(t *testing.T) {
	tiff := []byte{'X', 'X', 0, 0, 0, 0, 0, 0}
	data, err := parseTIFF(tiff)
	if err != nil {
		t.Fatalf("parseTIFF returned an error instead of a zero value: %v", err)
	}
	if data != (exifData{}) {
		t.Errorf("expected a zero exifData for an unrecognized byte order, got %+v", data)
	}
}

func TestExifDataToJSONEmptyForZeroValue(t *testing.T) {
	if got := (exifData{}).toJSON(); got != "" {
		t.Errorf("toJSON() on a zero exifData = %q, want empty", got)
	}
}

func TestExifDataToJSONIncludesPopulatedFields(t *testing.T) {
	e := exifData{Make: "Canon", Model: "EOS R5"}
	got := e.toJSON()
	if got == "" {
		t.Fatal("expected non-empty JSON for a populated exifData")
	}
}
