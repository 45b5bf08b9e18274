package tools

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// maxDiffPreviewLines caps the size of approval diff previews so a
// huge rewrite does not flood the question prompt.
const maxDiffPreviewLines = 200

// DiffPreview renders a unified-style diff between old and new file
// content for approval prompts.
func DiffPreview(filePath, oldContent, newContent string) string {
	dmp := diffmatchpatch.New()

	var result strings.Builder
	result.WriteString(fmt.Sprintf("--- %s\n", filePath))
	result.WriteString(fmt.Sprintf("+++ %s\n", filePath))

	diffs := dmp.DiffMain(oldContent, newContent, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	written := 0
	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		for i, line := range lines {
			// Skip empty trailing element from split
			if i == len(lines)-1 && line == "" {
				continue
			}
			if written >= maxDiffPreviewLines {
				result.WriteString("... (diff truncated)\n")
				return result.String()
			}

			switch d.Type {
			case diffmatchpatch.DiffEqual:
				result.WriteString(" " + line + "\n")
			case diffmatchpatch.DiffDelete:
				result.WriteString("-" + line + "\n")
			case diffmatchpatch.DiffInsert:
				result.WriteString("+" + line + "\n")
			}
			written++
		}
	}

	return result.String()
}
