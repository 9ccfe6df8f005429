package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/santhosh-tekuri/jsonschema/v5"
	_ "golang.org/x/image/webp"
)

// editStateSchemaJSON constrains the opaque edit-state payload to the
// shape applyCrop and its future siblings (exposure, rotation) understand,
// rejecting malformed client input before it is unmarshaled into EditState.
const editStateSchemaJSON = `{
	"type": "object",
	"properties": {
		"crop": {
			"type": "object",
			"properties": {
				"x":      {"type": "number", "minimum": 0, "maximum": 1},
				"y":      {"type": "number", "minimum": 0, "maximum": 1},
				"width":  {"type": "number", "minimum": 0, "maximum": 1},
				"height": {"type": "number", "minimum": 0, "maximum": 1}
			},
			"required": ["x", "y", "width", "height"]
		}
	}
}`

var (
	editStateSchemaOnce sync.Once
	editStateSchema     *jsonschema.Schema
)

func compiledEditStateSchema() *jsonschema.Schema {
	editStateSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("edit_state.json", strings.NewReader(editStateSchemaJSON)); err != nil {
			panic(fmt.Sprintf("invalid edit state schema: %v", err))
		}
		schema, err := compiler.Compile("edit_state.json")
		if err != nil {
			panic(fmt.Sprintf("compile edit state schema: %v", err))
		}
		editStateSchema = schema
	})
	return editStateSchema
}

// ValidateEditState rejects an edit-state payload that doesn't match the
// shape this adapter knows how to apply, before any JSON is unmarshaled
// into EditState proper.
func ValidateEditState(editState json.RawMessage) error {
	if len(editState) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(editState, &doc); err != nil {
		return fmt.Errorf("decode edit state: %w", err)
	}
	if err := compiledEditStateSchema().Validate(doc); err != nil {
		return fmt.Errorf("edit state does not match schema: %w", err)
	}
	return nil
}

// DefaultThumbnailLongEdge and DefaultPreviewLongEdge are the canonical
// artifact sizes. Preview defaults to the larger edge so it doubles as a
// lightbox-quality render rather than a second thumbnail tier.
const (
	DefaultThumbnailLongEdge = 256
	DefaultPreviewLongEdge   = 2560

	thumbnailJPEGQuality = 82
	previewJPEGQuality   = 90
)

// DecodedRGB is a decoded, uncompressed raster: width, height, and
// top-down 3-bytes-per-pixel RGB data.
type DecodedRGB struct {
	Width  int
	Height int
	Pixels []byte
}

// Decoder is the external decode adapter contract: three entry points plus
// DecodeBoth, none of which are cooperatively cancellable once the pixel work starts (the
// scheduler enforces freshness positively via generation numbers instead —
// see service.go).
type Decoder interface {
	DecodeThumbnail(ctx context.Context, raw []byte, longEdge int) (DecodedRGB, error)
	DecodePreview(ctx context.Context, raw []byte, maxEdge int) (DecodedRGB, error)
	EncodeEditedThumbnail(ctx context.Context, raw []byte, longEdge int, editState json.RawMessage) ([]byte, error)
	// DecodeBoth decodes raw once and derives both artifact sizes from the
	// same source raster, for the whole-photo processor (C5) which always
	// needs both and would otherwise pay the decode cost twice.
	DecodeBoth(ctx context.Context, raw []byte, thumbLongEdge, previewLongEdge int) (thumbnail, preview DecodedRGB, err error)
}

// goDecoder implements Decoder with a pure-Go image stack
// (disintegration/imaging for resampling, golang.org/x/image/webp for
// decode support). This seam is where a libvips/govips backend would be
// swapped in without touching the scheduler.
type goDecoder struct{}

// NewDecoder returns the default pure-Go Decoder.
func NewDecoder() Decoder {
	return goDecoder{}
}

func (goDecoder) DecodeThumbnail(ctx context.Context, raw []byte, longEdge int) (DecodedRGB, error) {
	if longEdge <= 0 {
		longEdge = DefaultThumbnailLongEdge
	}
	return decodeFit(raw, longEdge)
}

func (goDecoder) DecodePreview(ctx context.Context, raw []byte, maxEdge int) (DecodedRGB, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultPreviewLongEdge
	}
	return decodeFit(raw, maxEdge)
}

func decodeFit(raw []byte, longEdge int) (DecodedRGB, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return DecodedRGB{}, fmt.Errorf("decode source image: %w", err)
	}
	return fitToRGB(src, longEdge), nil
}

func fitToRGB(src image.Image, longEdge int) DecodedRGB {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	resized := image.Image(imaging.Clone(src))
	if w > longEdge || h > longEdge {
		if w >= h {
			resized = imaging.Resize(src, longEdge, 0, imaging.Lanczos)
		} else {
			resized = imaging.Resize(src, 0, longEdge, imaging.Lanczos)
		}
	}

	rb := resized.Bounds()
	rgb := make([]byte, rb.Dx()*rb.Dy()*3)
	i := 0
	for y := rb.Min.Y; y < rb.Max.Y; y++ {
		for x := rb.Min.X; x < rb.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			rgb[i] = byte(r >> 8)
			rgb[i+1] = byte(g >> 8)
			rgb[i+2] = byte(b >> 8)
			i += 3
		}
	}

	return DecodedRGB{Width: rb.Dx(), Height: rb.Dy(), Pixels: rgb}
}

func (goDecoder) DecodeBoth(ctx context.Context, raw []byte, thumbLongEdge, previewLongEdge int) (DecodedRGB, DecodedRGB, error) {
	if thumbLongEdge <= 0 {
		thumbLongEdge = DefaultThumbnailLongEdge
	}
	if previewLongEdge <= 0 {
		previewLongEdge = DefaultPreviewLongEdge
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return DecodedRGB{}, DecodedRGB{}, fmt.Errorf("decode source image: %w", err)
	}
	return fitToRGB(src, thumbLongEdge), fitToRGB(src, previewLongEdge), nil
}

// EncodeJPEG re-encodes a DecodedRGB to a JPEG blob at the given quality.
func EncodeJPEG(d DecodedRGB, quality int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, d.Width, d.Height))
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			i := (y*d.Width + x) * 3
			img.Set(x, y, rgbColor{d.Pixels[i], d.Pixels[i+1], d.Pixels[i+2]})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

type rgbColor struct{ r, g, b byte }

func (c rgbColor) RGBA() (r, g, b, a uint32) {
	return uint32(c.r) * 0x101, uint32(c.g) * 0x101, uint32(c.b) * 0x101, 0xffff
}

// EncodeEditedThumbnail regenerates a thumbnail directly from source bytes
// plus an opaque edit-state payload (crop/exposure/etc.), bypassing the
// plain decode path. The payload is never interpreted by the scheduler —
// only by this adapter.
func (goDecoder) EncodeEditedThumbnail(ctx context.Context, raw []byte, longEdge int, editState json.RawMessage) ([]byte, error) {
	if err := ValidateEditState(editState); err != nil {
		return nil, err
	}

	var edit EditState
	if len(editState) > 0 {
		if err := json.Unmarshal(editState, &edit); err != nil {
			return nil, fmt.Errorf("decode edit state: %w", err)
		}
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	if edit.Crop != nil {
		src = applyCrop(src, *edit.Crop)
	}

	if longEdge <= 0 {
		longEdge = DefaultThumbnailLongEdge
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	resized := src
	if w > longEdge || h > longEdge {
		if w >= h {
			resized = imaging.Resize(src, longEdge, 0, imaging.Lanczos)
		} else {
			resized = imaging.Resize(src, 0, longEdge, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode edited thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// CropConfig defines relative crop coordinates (0.0-1.0), one possible
// shape inside an opaque EditState payload.
type CropConfig struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// EditState is the decoded shape of the opaque edit-state payload this
// adapter understands. The scheduler itself never parses it.
type EditState struct {
	Crop *CropConfig `json:"crop,omitempty"`
}

func applyCrop(src image.Image, crop CropConfig) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	x := int(crop.X * float64(w))
	y := int(crop.Y * float64(h))
	cw := int(crop.Width * float64(w))
	ch := int(crop.Height * float64(h))
	if cw <= 0 || ch <= 0 {
		return src
	}
	return imaging.Crop(src, image.Rect(x, y, x+cw, y+ch))
}
