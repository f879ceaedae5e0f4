package service

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

// fallbackExtension is used when neither the filename nor the bytes identify the format.
const fallbackExtension = "bin"

var knownExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
	"bmp": true, "heic": true, "heif": true, "tiff": true, "avif": true,
}

type imageFormat struct {
	Extension   string
	ContentType string
	Width       int
	Height      int
}

// detectImageFormat prefers a recognized filename extension and otherwise
// sniffs the bytes. Dimensions are filled in whenever the header decodes.
func detectImageFormat(filename string, data []byte) imageFormat {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))

	cfg, sniffed, err := image.DecodeConfig(bytes.NewReader(data))
	if !knownExtensions[ext] {
		ext = fallbackExtension
		if err == nil {
			ext = sniffed
			if ext == "jpeg" {
				ext = "jpg"
			}
		}
	}

	f := imageFormat{Extension: ext, ContentType: getContentType(ext)}
	if err == nil {
		f.Width, f.Height = cfg.Width, cfg.Height
	}
	return f
}

// extensionOfKey returns the part of a blob key after its last dot.
func extensionOfKey(key string) string {
	if idx := strings.LastIndex(key, "."); idx != -1 && idx < len(key)-1 {
		return strings.ToLower(key[idx+1:])
	}
	return fallbackExtension
}
