package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffPreviewMarksChanges(t *testing.T) {
	old := "line one\nline two\nline three\n"
	new := "line one\nline 2\nline three\n"

	preview := DiffPreview("file.txt", old, new)

	assert.True(t, strings.HasPrefix(preview, "--- file.txt\n+++ file.txt\n"))
	assert.Contains(t, preview, "-line two")
	assert.Contains(t, preview, "+line 2")
	assert.Contains(t, preview, " line one")
}

func TestDiffPreviewTruncation(t *testing.T) {
	var oldLines, newLines []string
	for i := 0; i < maxDiffPreviewLines+50; i++ {
		oldLines = append(oldLines, "old")
		newLines = append(newLines, "new")
	}

	preview := DiffPreview("big.txt", strings.Join(oldLines, "\n"), strings.Join(newLines, "\n"))
	assert.Contains(t, preview, "(diff truncated)")
}

func TestIsBinaryPath(t *testing.T) {
	assert.True(t, IsBinaryPath("photo.PNG"))
	assert.True(t, IsBinaryPath("archive.tar"))
	assert.False(t, IsBinaryPath("main.go"))
	assert.False(t, IsBinaryPath("notes.txt"))
}

func TestLooksBinary(t *testing.T) {
	assert.True(t, looksBinary([]byte{0x89, 0x50, 0x00, 0x47}))
	assert.False(t, looksBinary([]byte("plain text content")))
}
