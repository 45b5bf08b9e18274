package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// directories never descended into during content search.
var searchSkipDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"target":       {},
	"__pycache__":  {},
}

// SearchTool ranks project files against a natural-language query by
// term frequency and returns the best matching snippets. It is the
// in-process fallback for "find code related to X" requests that are
// too fuzzy for grep.
type SearchTool struct {
	baseDir string
}

// NewSearchTool creates a new SearchTool instance.
func NewSearchTool(baseDir string) *SearchTool {
	return &SearchTool{baseDir: baseDir}
}

func (t *SearchTool) Name() string {
	return "search"
}

func (t *SearchTool) Group() string {
	return PowerGroup
}

func (t *SearchTool) Description() string {
	return "Searches the project for code related to a natural language query. Ranks files by how many query terms they contain and returns the best matching lines. Use grep for exact patterns."
}

func (t *SearchTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        Qualify(t.Group(), t.Name()),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {
					Type:        genai.TypeString,
					Description: "The natural language query describing what to find (e.g., 'where are settings saved').",
				},
				"max_results": {
					Type:        genai.TypeInteger,
					Description: "Maximum number of files to return. Default: 10.",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *SearchTool) Validate(args map[string]any) error {
	query, ok := GetString(args, "query")
	if !ok || strings.TrimSpace(query) == "" {
		return NewValidationError("query", "is required")
	}
	return nil
}

var searchTermSplit = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

type searchHit struct {
	path  string
	score int
	lines []string
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	query, _ := GetString(args, "query")
	maxResults := GetIntDefault(args, "max_results", 10)
	if maxResults <= 0 {
		maxResults = 10
	}

	terms := make([]string, 0, 8)
	for _, term := range searchTermSplit.Split(strings.ToLower(query), -1) {
		// Short tokens match everything and drown the ranking
		if len(term) >= 3 {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return NewErrorResult("query contains no searchable terms"), nil
	}

	var hits []searchHit
	walkErr := filepath.WalkDir(t.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			if _, skip := searchSkipDirs[d.Name()]; skip {
				return filepath.SkipDir
			}
			if strings.HasPrefix(d.Name(), ".") && path != t.baseDir {
				return filepath.SkipDir
			}
			return nil
		}
		if IsBinaryPath(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxGrepFileSize {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil || looksBinary(data) {
			return nil
		}

		hit := scoreFile(RelPath(t.baseDir, path), string(data), terms)
		if hit.score > 0 {
			hits = append(hits, hit)
		}
		return nil
	})
	if walkErr != nil && walkErr != ctx.Err() {
		return NewErrorResult(fmt.Sprintf("error during search: %s", walkErr)), nil
	}

	if len(hits) == 0 {
		return NewSuccessResult(fmt.Sprintf("No code found matching query '%s'.", query)), nil
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].path < hits[j].path
	})
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Top %d result(s) for '%s':\n\n", len(hits), query))
	for _, hit := range hits {
		builder.WriteString(fmt.Sprintf("%s (score %d)\n", hit.path, hit.score))
		for _, line := range hit.lines {
			builder.WriteString("  " + line + "\n")
		}
		builder.WriteString("\n")
	}

	return NewSuccessResult(builder.String()), nil
}

// scoreFile counts query term occurrences and keeps the first few
// matching lines as a preview.
func scoreFile(path, content string, terms []string) searchHit {
	lower := strings.ToLower(content)

	score := 0
	matchedTerms := 0
	for _, term := range terms {
		n := strings.Count(lower, term)
		if n > 0 {
			matchedTerms++
			score += n
		}
	}
	if matchedTerms == 0 {
		return searchHit{}
	}
	// Files containing more distinct terms rank above files repeating one
	score *= matchedTerms

	var preview []string
	for i, line := range strings.Split(content, "\n") {
		if len(preview) >= 3 {
			break
		}
		lowerLine := strings.ToLower(line)
		for _, term := range terms {
			if strings.Contains(lowerLine, term) {
				preview = append(preview, fmt.Sprintf("%d: %s", i+1, truncateLine(strings.TrimSpace(line))))
				break
			}
		}
	}

	return searchHit{path: path, score: score, lines: preview}
}
