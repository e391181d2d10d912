package constants

import "strings"

// ImageExtensions holds the file extensions accepted as work items when
// unpacking an uploaded archive.
var ImageExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"bmp":  {},
	"tiff": {},
	"webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsImagePath reports whether the path names a supported image file.
func IsImagePath(path string) bool {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return false
	}
	_, ok := ImageExtensions[NormalizeExt(path[idx:])]
	return ok
}
