package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/webp"

	"github.com/maukemana/catalog/internal/catalogerr"
)

// ValidationResult is what ValidateImage reports: enough to populate a
// photo's catalog record (dimensions, format, dedup hash) without a full
// decode.
type ValidationResult struct {
	Width        int
	Height       int
	Format       string
	HasAlpha     bool
	OriginalSize int64
	ContentHash  string
}

const (
	// MaxSourceBytes bounds a single source file. RAW camera files run
	// large, so this is generous compared to a typical web-upload limit.
	MaxSourceBytes = 200 * 1024 * 1024
	// MaxSourceDimension and maxSourcePixels guard against decompression
	// bombs in formats Go's image package will happily decode.
	MaxSourceDimension = 20000
	maxSourcePixels     = 200 * 1024 * 1024
)

// AllowedFormats lists the sniffed formats ValidateImage accepts; the
// scanner itself only picks up .jpg/.jpeg/.arw files. RAW formats (heic,
// avif, arw) pass validation without a header probe; no embedded preview
// is extracted from them, and the decode adapter has no decoder for them.
var AllowedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
	"gif":  true,
	"heic": true,
	"avif": true,
	"arw":  true,
}

// rawFormats skips image.DecodeConfig entirely — Go's stdlib image
// package has no decoder for them.
var rawFormats = map[string]bool{
	"heic": true,
	"avif": true,
	"arw":  true,
}

var magicBytes = map[string][]byte{
	"jpeg": {0xFF, 0xD8, 0xFF},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
}

// DetectFormat identifies an image format from its magic bytes, never from
// a file extension or declared content type.
func DetectFormat(data []byte) string {
	if len(data) < 12 {
		return ""
	}

	if bytes.HasPrefix(data, magicBytes["jpeg"]) {
		return "jpeg"
	}
	if bytes.HasPrefix(data, magicBytes["png"]) {
		return "png"
	}
	if bytes.HasPrefix(data, magicBytes["gif"]) {
		return "gif"
	}
	if bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return "webp"
	}
	if bytes.Equal(data[4:8], []byte("ftyp")) {
		switch string(data[8:12]) {
		case "heic", "heix", "hevc", "hevx", "mif1":
			return "heic"
		case "avif", "avis":
			return "avif"
		}
	}
	// Sony ARW is TIFF-based: starts with a little- or big-endian TIFF
	// byte-order marker.
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "arw"
	}

	return ""
}

// ValidateImage sniffs the format, enforces size/dimension ceilings, and
// computes the SHA-256 content hash, before any pixel work runs.
func ValidateImage(data []byte) (*ValidationResult, error) {
	if int64(len(data)) > MaxSourceBytes {
		return nil, catalogerr.New(catalogerr.KindThumbnailError,
			fmt.Sprintf("file size %d exceeds maximum %d bytes", len(data), MaxSourceBytes), nil)
	}

	format := DetectFormat(data)
	if format == "" {
		return nil, catalogerr.New(catalogerr.KindThumbnailError, "unable to detect image format", nil)
	}
	if !AllowedFormats[format] {
		return nil, catalogerr.New(catalogerr.KindThumbnailError, fmt.Sprintf("format %s is not supported", format), nil)
	}

	result := &ValidationResult{
		Format:       format,
		OriginalSize: int64(len(data)),
		ContentHash:  ComputeContentHash(data),
	}

	if rawFormats[format] {
		return result, nil
	}

	reader := bytes.NewReader(data)
	config, _, err := image.DecodeConfig(reader)
	if err != nil {
		return nil, catalogerr.New(catalogerr.KindThumbnailError, fmt.Sprintf("decode image header: %v", err), err)
	}
	result.Width = config.Width
	result.Height = config.Height

	if config.Width > MaxSourceDimension || config.Height > MaxSourceDimension {
		return nil, catalogerr.New(catalogerr.KindThumbnailError,
			fmt.Sprintf("image dimensions %dx%d exceed maximum %d", config.Width, config.Height, MaxSourceDimension), nil)
	}
	if int64(config.Width)*int64(config.Height) > maxSourcePixels {
		return nil, catalogerr.New(catalogerr.KindThumbnailError, "image too large (potential decompression bomb)", nil)
	}

	reader.Seek(0, io.SeekStart)
	if img, _, err := image.Decode(reader); err == nil {
		result.HasAlpha = hasAlphaChannel(img)
	}

	return result, nil
}

func hasAlphaChannel(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return true
	default:
		return false
	}
}

// ComputeContentHash returns the hex-encoded SHA-256 hash of data.
func ComputeContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
