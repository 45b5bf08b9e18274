package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"google.golang.org/genai"
)

const (
	// maxGrepMatches caps the total number of matches returned.
	maxGrepMatches = 500
	// maxGrepFileSize skips files larger than this many bytes.
	maxGrepFileSize = 10 * 1024 * 1024
)

// GrepTool searches for a regex pattern in files selected by a glob
// pattern, with optional context lines around each match.
type GrepTool struct {
	baseDir string
}

// NewGrepTool creates a new GrepTool instance.
func NewGrepTool(baseDir string) *GrepTool {
	return &GrepTool{baseDir: baseDir}
}

func (t *GrepTool) Name() string {
	return "grep"
}

func (t *GrepTool) Group() string {
	return PowerGroup
}

func (t *GrepTool) Description() string {
	return "Searches for content matching a regular expression pattern within files specified by a glob pattern. Returns matching lines and their context."
}

func (t *GrepTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"file_pattern": {
					Type:        genai.TypeString,
					Description: "A glob pattern specifying the files to search within (e.g., src/**/*.go, *.py).",
				},
				"search_term": {
					Type:        genai.TypeString,
					Description: "The regular expression to search for within the files.",
				},
				"context_lines": {
					Type:        genai.TypeInteger,
					Description: "The number of lines of context to show before and after each matching line. Default: 0.",
				},
				"case_sensitive": {
					Type:        genai.TypeBoolean,
					Description: "Whether the search should be case sensitive. Default: false.",
				},
			},
			Required: []string{"file_pattern", "search_term"},
		},
	}
}

func (t *GrepTool) Validate(args map[string]any) error {
	filePattern, ok := GetString(args, "file_pattern")
	if !ok || filePattern == "" {
		return NewValidationError("file_pattern", "is required")
	}

	searchTerm, ok := GetString(args, "search_term")
	if !ok || searchTerm == "" {
		return NewValidationError("search_term", "is required")
	}
	if _, err := regexp.Compile(searchTerm); err != nil {
		return NewValidationError("search_term", fmt.Sprintf("invalid regex: %s", err))
	}

	if lines, ok := GetInt(args, "context_lines"); ok && lines < 0 {
		return NewValidationError("context_lines", "must not be negative")
	}
	return nil
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	filePattern, _ := GetString(args, "file_pattern")
	searchTerm, _ := GetString(args, "search_term")
	contextLines := GetIntDefault(args, "context_lines", 0)
	caseSensitive := GetBoolDefault(args, "case_sensitive", false)

	regexPattern := searchTerm
	if !caseSensitive {
		regexPattern = "(?i)" + searchTerm
	}
	re, err := regexp.Compile(regexPattern)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("invalid regex: %s", err)), nil
	}

	matches, err := doublestar.FilepathGlob(filepath.Join(t.baseDir, filePattern))
	if err != nil {
		return NewErrorResult(fmt.Sprintf("error during grep: %s", err)), nil
	}

	var files []string
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() > maxGrepFileSize || IsBinaryPath(match) {
			continue
		}
		files = append(files, match)
	}

	if len(files) == 0 {
		return NewSuccessResult(fmt.Sprintf("No files found matching pattern '%s'.", filePattern)), nil
	}

	var results strings.Builder
	matchCount := 0
	fileCount := 0

fileLoop:
	for _, file := range files {
		select {
		case <-ctx.Done():
			break fileLoop
		default:
		}

		data, err := os.ReadFile(file)
		if err != nil || looksBinary(data) {
			continue
		}

		lines := strings.Split(string(data), "\n")
		rel := RelPath(t.baseDir, file)
		fileMatched := false

		for i, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			if matchCount >= maxGrepMatches {
				break fileLoop
			}
			fileMatched = true
			matchCount++

			if contextLines > 0 {
				start := i - contextLines
				if start < 0 {
					start = 0
				}
				end := i + contextLines
				if end > len(lines)-1 {
					end = len(lines) - 1
				}
				results.WriteString(fmt.Sprintf("%s:%d:\n", rel, i+1))
				for j := start; j <= end; j++ {
					marker := "  "
					if j == i {
						marker = "> "
					}
					results.WriteString(fmt.Sprintf("%s%d: %s\n", marker, j+1, truncateLine(lines[j])))
				}
				results.WriteString("\n")
			} else {
				results.WriteString(fmt.Sprintf("%s:%d: %s\n", rel, i+1, truncateLine(line)))
			}
		}
		if fileMatched {
			fileCount++
		}
	}

	if matchCount == 0 {
		return NewSuccessResult(fmt.Sprintf("No matches found for pattern '%s' in files matching '%s'.", searchTerm, filePattern)), nil
	}

	summary := fmt.Sprintf("Found %d match(es) in %d file(s):\n\n", matchCount, fileCount)
	if matchCount >= maxGrepMatches {
		summary = fmt.Sprintf("Found %d+ match(es) in %d file(s) (capped at %d, refine pattern for complete results):\n\n", matchCount, fileCount, maxGrepMatches)
	}
	return NewSuccessResult(summary + results.String()), nil
}

func truncateLine(line string) string {
	if len(line) > 500 {
		return line[:500] + "..."
	}
	return line
}
