package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: byte(x), G: byte(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture jpeg: %v", err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture png: %v", err)
	}
	return buf.Bytes()
}

func TestDetectFormatJPEG(t *testing.T) {
	if got := DetectFormat(jpegBytes(t, 4, 4)); got != "jpeg" {
		t.Fatalf("expected jpeg, got %q", got)
	}
}

func TestDetectFormatPNG(t *testing.T) {
	if got := DetectFormat(pngBytes(t, 4, 4)); got != "png" {
		t.Fatalf("expected png, got %q", got)
	}
}

func TestDetectFormatARW(t *testing.T) {
	little := append([]byte{0x49, 0x49, 0x2A, 0x00}, make([]byte, 8)...)
	if got := DetectFormat(little); got != "arw" {
		t.Fatalf("expected arw for little-endian TIFF marker, got %q", got)
	}
	big := append([]byte{0x4D, 0x4D, 0x00, 0x2A}, make([]byte, 8)...)
	if got := DetectFormat(big); got != "arw" {
		t.Fatalf("expected arw for big-endian TIFF marker, got %q", got)
	}
}

func TestDetectFormatUnknown(t *testing.T) {
	if got := DetectFormat([]byte("not an image, just text padding")); got != "" {
		t.Fatalf("expected empty string for unrecognized bytes, got %q", got)
	}
}

func TestDetectFormatTooShort(t *testing.T) {
	if got := DetectFormat([]byte{0xFF, 0xD8}); got != "" {
		t.Fatalf("expected empty string for undersized input, got %q", got)
	}
}

func TestValidateImageAcceptsJPEG(t *testing.T) {
	data := jpegBytes(t, 10, 20)
	result, err := ValidateImage(data)
	if err != nil {
		t.Fatalf("ValidateImage: %v", err)
	}
	if result.Format != "jpeg" {
		t.Fatalf("expected format jpeg, got %q", result.Format)
	}
	if result.Width != 10 || result.Height != 20 {
		t.Fatalf("expected dimensions 10x20, got %dx%d", result.Width, result.Height)
	}
	if result.ContentHash == "" {
		t.Fatal("expected a non-empty content hash")
	}
}

func TestValidateImageRejectsUnknownFormat(t *testing.T) {
	if _, err := ValidateImage([]byte("definitely not an image, way too short")); err == nil {
		t.Fatal("expected an error for unrecognized data")
	}
}

func TestValidateImageRejectsOversizedFile(t *testing.T) {
	oversized := make([]byte, MaxSourceBytes+1)
	copy(oversized, []byte{0xFF, 0xD8, 0xFF})
	if _, err := ValidateImage(oversized); err == nil {
		t.Fatal("expected an error for a file exceeding MaxSourceBytes")
	}
}

func TestValidateImageSkipsDecodeConfigForRAW(t *testing.T) {
	raw := append([]byte{0x49, 0x49, 0x2A, 0x00}, make([]byte, 20)...)
	result, err := ValidateImage(raw)
	if err != nil {
		t.Fatalf("ValidateImage: %v", err)
	}
	if result.Format != "arw" {
		t.Fatalf("expected format arw, got %q", result.Format)
	}
	if result.Width != 0 || result.Height != 0 {
		t.Fatalf("expected RAW to skip dimension probing, got %dx%d", result.Width, result.Height)
	}
}

func TestComputeContentHashDeterministic(t *testing.T) {
	data := jpegBytes(t, 5, 5)
	a := ComputeContentHash(data)
	b := ComputeContentHash(data)
	if a != b {
		t.Fatalf("expected the same bytes to hash identically, got %q and %q", a, b)
	}
	if a == ComputeContentHash(jpegBytes(t, 6, 6)) {
		t.Fatal("expected different source bytes to hash differently")
	}
}
