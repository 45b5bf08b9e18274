package tools

import (
	"path/filepath"
	"strings"
)

// binaryExtensions lists file extensions excluded from text handling:
// images, audio, video, archives, office documents and executables.
var binaryExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".bmp":  {},
	".tiff": {},
	".ico":  {},
	".mp3":  {},
	".wav":  {},
	".ogg":  {},
	".flac": {},
	".mp4":  {},
	".mov":  {},
	".avi":  {},
	".mkv":  {},
	".zip":  {},
	".tar":  {},
	".gz":   {},
	".7z":   {},
	".pdf":  {},
	".doc":  {},
	".docx": {},
	".xls":  {},
	".xlsx": {},
	".exe":  {},
	".dll":  {},
	".so":   {},
}

// IsBinaryPath reports whether a path has a known binary extension.
func IsBinaryPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := binaryExtensions[ext]
	return ok
}

// looksBinary reports whether data contains a NUL byte in its first
// 512 bytes, the same heuristic git uses.
func looksBinary(data []byte) bool {
	checkLen := len(data)
	if checkLen > 512 {
		checkLen = 512
	}
	for _, b := range data[:checkLen] {
		if b == 0 {
			return true
		}
	}
	return false
}
