package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func fixtureJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: byte(x % 256), G: byte(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeThumbnailResizesToLongEdge(t *testing.T) {
	d := NewDecoder()
	raw := fixtureJPEG(t, 800, 400)

	got, err := d.DecodeThumbnail(context.Background(), raw, 256)
	if err != nil {
		t.Fatalf("DecodeThumbnail: %v", err)
	}
	if got.Width != 256 {
		t.Fatalf("expected the wide edge resized to 256, got %d", got.Width)
	}
	if got.Height == 0 || got.Height >= 400 {
		t.Fatalf("expected the short edge to shrink proportionally, got %d", got.Height)
	}
	if len(got.Pixels) != got.Width*got.Height*3 {
		t.Fatalf("expected %d RGB bytes, got %d", got.Width*got.Height*3, len(got.Pixels))
	}
}

func TestDecodeThumbnailLeavesSmallImagesUnscaled(t *testing.T) {
	d := NewDecoder()
	raw := fixtureJPEG(t, 50, 30)

	got, err := d.DecodeThumbnail(context.Background(), raw, 256)
	if err != nil {
		t.Fatalf("DecodeThumbnail: %v", err)
	}
	if got.Width != 50 || got.Height != 30 {
		t.Fatalf("expected an image smaller than longEdge to pass through unscaled, got %dx%d", got.Width, got.Height)
	}
}

func TestDecodeThumbnailDefaultsLongEdge(t *testing.T) {
	d := NewDecoder()
	raw := fixtureJPEG(t, 800, 800)

	got, err := d.DecodeThumbnail(context.Background(), raw, 0)
	if err != nil {
		t.Fatalf("DecodeThumbnail: %v", err)
	}
	if got.Width != DefaultThumbnailLongEdge {
		t.Fatalf("expected a non-positive longEdge to fall back to the default, got %d", got.Width)
	}
}

func TestDecodeBothDerivesTwoSizesFromOneDecode(t *testing.T) {
	d := NewDecoder()
	raw := fixtureJPEG(t, 4000, 2000)

	thumb, preview, err := d.DecodeBoth(context.Background(), raw, 256, 1280)
	if err != nil {
		t.Fatalf("DecodeBoth: %v", err)
	}
	if thumb.Width != 256 {
		t.Fatalf("expected thumbnail long edge 256, got %d", thumb.Width)
	}
	if preview.Width != 1280 {
		t.Fatalf("expected preview long edge 1280, got %d", preview.Width)
	}
}

func TestEncodeJPEGRoundTrips(t *testing.T) {
	d := NewDecoder()
	raw := fixtureJPEG(t, 64, 64)
	decoded, err := d.DecodeThumbnail(context.Background(), raw, 64)
	if err != nil {
		t.Fatalf("DecodeThumbnail: %v", err)
	}

	blob, err := EncodeJPEG(decoded, 85)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("decoding the re-encoded blob failed: %v", err)
	}
	if img.Bounds().Dx() != decoded.Width || img.Bounds().Dy() != decoded.Height {
		t.Fatalf("expected re-encoded dimensions to match, got %dx%d want %dx%d",
			img.Bounds().Dx(), img.Bounds().Dy(), decoded.Width, decoded.Height)
	}
}

func TestEncodeEditedThumbnailAppliesCrop(t *testing.T) {
	d := NewDecoder()
	raw := fixtureJPEG(t, 400, 400)

	edit := EditState{Crop: &CropConfig{X: 0.25, Y: 0.25, Width: 0.5, Height: 0.5}}
	editState, err := json.Marshal(edit)
	if err != nil {
		t.Fatalf("marshal edit state: %v", err)
	}

	blob, err := d.EncodeEditedThumbnail(context.Background(), raw, 256, editState)
	if err != nil {
		t.Fatalf("EncodeEditedThumbnail: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	// The crop takes a 200x200 region of a 400x400 source, well under the
	// 256 long edge, so it should pass through without further resizing.
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 200 {
		t.Fatalf("expected a 200x200 crop, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestValidateEditStateAcceptsEmpty(t *testing.T) {
	if err := ValidateEditState(nil); err != nil {
		t.Fatalf("expected an empty payload to be valid, got %v", err)
	}
}

func TestValidateEditStateAcceptsWellFormedCrop(t *testing.T) {
	payload := []byte(`{"crop":{"x":0.1,"y":0.1,"width":0.5,"height":0.5}}`)
	if err := ValidateEditState(payload); err != nil {
		t.Fatalf("expected a well-formed crop to validate, got %v", err)
	}
}

func TestValidateEditStateRejectsOutOfRangeCrop(t *testing.T) {
	payload := []byte(`{"crop":{"x":1.5,"y":0,"width":0.5,"height":0.5}}`)
	if err := ValidateEditState(payload); err == nil {
		t.Fatal("expected an out-of-range crop coordinate to fail validation")
	}
}

func TestValidateEditStateRejectsIncompleteCrop(t *testing.T) {
	payload := []byte(`{"crop":{"x":0.1,"y":0.1}}`)
	if err := ValidateEditState(payload); err == nil {
		t.Fatal("expected a crop missing required fields to fail validation")
	}
}

func TestEncodeEditedThumbnailRejectsInvalidEditState(t *testing.T) {
	d := NewDecoder()
	raw := fixtureJPEG(t, 100, 100)
	_, err := d.EncodeEditedThumbnail(context.Background(), raw, 256, []byte(`{"crop":{"x":2,"y":0,"width":1,"height":1}}`))
	if err == nil {
		t.Fatal("expected an invalid edit state to be rejected before decoding")
	}
}

func TestEncodeEditedThumbnailWithoutCropJustResizes(t *testing.T) {
	d := NewDecoder()
	raw := fixtureJPEG(t, 400, 200)

	blob, err := d.EncodeEditedThumbnail(context.Background(), raw, 256, nil)
	if err != nil {
		t.Fatalf("EncodeEditedThumbnail: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dx() != 256 {
		t.Fatalf("expected the long edge resized to 256, got %d", img.Bounds().Dx())
	}
}
