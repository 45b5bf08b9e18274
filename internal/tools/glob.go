package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"google.golang.org/genai"
)

// maxGlobResults caps the number of paths returned per call.
const maxGlobResults = 1000

// GlobTool finds files and directories matching a glob pattern.
type GlobTool struct {
	baseDir string
}

// NewGlobTool creates a new GlobTool instance.
func NewGlobTool(baseDir string) *GlobTool {
	return &GlobTool{baseDir: baseDir}
}

func (t *GlobTool) Name() string {
	return "glob"
}

func (t *GlobTool) Group() string {
	return PowerGroup
}

func (t *GlobTool) Description() string {
	return "Finds files and directories matching a specified glob pattern within the project. Useful for discovering files based on patterns. Returns paths relative to the project root, newest first."
}

func (t *GlobTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"pattern": {
					Type:        genai.TypeString,
					Description: "The glob pattern to search for (e.g., src/**/*.go, *.md).",
				},
				"cwd": {
					Type:        genai.TypeString,
					Description: "The working directory from which to apply the glob pattern (relative to project root). Default: project root.",
				},
				"ignore": {
					Type:        genai.TypeArray,
					Description: "An array of glob patterns to ignore.",
					Items:       &genai.Schema{Type: genai.TypeString},
				},
			},
			Required: []string{"pattern"},
		},
	}
}

func (t *GlobTool) Validate(args map[string]any) error {
	pattern, ok := GetString(args, "pattern")
	if !ok || pattern == "" {
		return NewValidationError("pattern", "is required")
	}
	if !doublestar.ValidatePattern(pattern) {
		return NewValidationError("pattern", "is not a valid glob pattern")
	}
	return nil
}

func (t *GlobTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	pattern, _ := GetString(args, "pattern")
	cwd := GetStringDefault(args, "cwd", "")
	ignore, _ := GetStringSlice(args, "ignore")

	searchDir := t.baseDir
	if cwd != "" {
		searchDir = resolvePath(t.baseDir, cwd)
	}

	if _, err := os.Stat(searchDir); err != nil {
		if os.IsNotExist(err) {
			return NewErrorResult(fmt.Sprintf("path not found: %s", cwd)), nil
		}
		return NewErrorResult(fmt.Sprintf("error accessing path: %s", err)), nil
	}

	matches, err := doublestar.FilepathGlob(filepath.Join(searchDir, pattern))
	if err != nil {
		return NewErrorResult(fmt.Sprintf("error executing glob pattern '%s': %s", pattern, err)), nil
	}

	type fileInfo struct {
		path    string
		modTime int64
	}
	var files []fileInfo

matchLoop:
	for _, match := range matches {
		rel := RelPath(t.baseDir, match)
		for _, ig := range ignore {
			if ok, _ := doublestar.PathMatch(ig, rel); ok {
				continue matchLoop
			}
		}

		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: rel, modTime: info.ModTime().Unix()})
	}

	// Newest first so recently touched files surface at the top
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime > files[j].modTime
	})

	totalFound := len(files)
	if len(files) > maxGlobResults {
		files = files[:maxGlobResults]
	}

	if len(files) == 0 {
		return NewSuccessResult(fmt.Sprintf("No files found matching pattern '%s'.", pattern)), nil
	}

	var builder strings.Builder
	if totalFound > maxGlobResults {
		builder.WriteString(fmt.Sprintf("(showing %d of %d matches)\n", maxGlobResults, totalFound))
	}
	for _, f := range files {
		builder.WriteString(f.path)
		builder.WriteString("\n")
	}

	return NewSuccessResult(builder.String()), nil
}
