// Package contenttype infers a content type from a path's extension. File
// contents are never inspected.
package contenttype

import (
	"mime"
	"path"
	"strings"
)

// Fallback is returned for unknown or missing extensions.
const Fallback = "application/octet-stream"

// Systems with sparse mime tables still get sensible answers for common types.
var builtin = map[string]string{
	".txt":      "text/plain; charset=utf-8",
	".md":       "text/markdown; charset=utf-8",
	".markdown": "text/markdown; charset=utf-8",
	".html":     "text/html; charset=utf-8",
	".htm":      "text/html; charset=utf-8",
	".css":      "text/css; charset=utf-8",
	".csv":      "text/csv; charset=utf-8",
	".js":       "text/javascript; charset=utf-8",
	".json":     "application/json",
	".xml":      "application/xml",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".pdf":      "application/pdf",
	".zip":      "application/zip",
	".gz":       "application/gzip",
	".wasm":     "application/wasm",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".webp":     "image/webp",
	".svg":      "image/svg+xml",
	".ico":      "image/x-icon",
	".mp3":      "audio/mpeg",
	".wav":      "audio/wav",
	".ogg":      "audio/ogg",
	".mp4":      "video/mp4",
	".webm":     "video/webm",
}

// ForPath returns the content type for name based on its extension.
func ForPath(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return Fallback
	}
	if ct, ok := builtin[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return Fallback
}
