// Package importer parses Markdown note collections (generic folders,
// Obsidian-style vaults) into plain note texts ready to be fed through the
// extraction pipeline one file at a time.
package importer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Note is one parsed Markdown file: the body with frontmatter stripped and
// wiki-link syntax flattened, plus the tags worth carrying into metadata.
type Note struct {
	// Path is the note's path relative to the import root.
	Path string

	// Title comes from the frontmatter "title" field, the first H1 heading,
	// or the filename, in that order.
	Title string

	// Content is the Markdown body, frontmatter removed and [[wiki-links]]
	// reduced to their display text.
	Content string

	// Tags merges frontmatter tags and inline #tags, sorted, deduplicated.
	Tags []string
}

var (
	wikilinkRe  = regexp.MustCompile(`\[\[([^\[\]|]+?)(?:\|([^\[\]]+?))?\]\]`)
	inlineTagRe = regexp.MustCompile(`(^|\s)#([\p{L}\p{N}/_-]+)`)
	h1Re        = regexp.MustCompile(`(?m)^#\s+(.+)$`)

	// frontmatterEndRe matches a closing fence: a line that is exactly ---
	// (trailing whitespace allowed). A ---- horizontal rule or a line merely
	// starting with --- does not terminate the frontmatter.
	frontmatterEndRe = regexp.MustCompile(`(?m)^---[ \t\r]*$`)
)

// ParseNote parses one Markdown file.
func ParseNote(content []byte, relativePath string) (*Note, error) {
	front, body, err := splitFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("importer: %s: %w", relativePath, err)
	}

	note := &Note{
		Path:    relativePath,
		Title:   titleFor(front, body, relativePath),
		Content: strings.TrimSpace(flattenWikiLinks(body)),
		Tags:    collectTags(front, body),
	}
	return note, nil
}

// splitFrontmatter separates a leading YAML frontmatter block (delimited by
// --- lines) from the body. Files without frontmatter pass through unchanged.
func splitFrontmatter(text string) (map[string]any, string, error) {
	if !strings.HasPrefix(text, "---\n") && !strings.HasPrefix(text, "---\r\n") {
		return nil, text, nil
	}

	rest := text[strings.Index(text, "\n")+1:]
	loc := frontmatterEndRe.FindStringIndex(rest)
	if loc == nil {
		// An unterminated frontmatter fence is treated as body content.
		return nil, text, nil
	}

	var front map[string]any
	if err := yaml.Unmarshal([]byte(rest[:loc[0]]), &front); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}

	body := strings.TrimPrefix(rest[loc[1]:], "\n")
	return front, body, nil
}

// flattenWikiLinks replaces [[target]] with target and [[target|alias]] with
// alias, so the pipeline sees readable prose instead of link syntax.
func flattenWikiLinks(body string) string {
	return wikilinkRe.ReplaceAllStringFunc(body, func(raw string) string {
		m := wikilinkRe.FindStringSubmatch(raw)
		if alias := strings.TrimSpace(m[2]); alias != "" {
			return alias
		}
		return strings.TrimSpace(m[1])
	})
}

// titleFor picks the note title: frontmatter, first H1, then filename.
func titleFor(front map[string]any, body, relativePath string) string {
	if t, ok := front["title"].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	if m := h1Re.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	base := filepath.Base(relativePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// collectTags merges frontmatter tags (string or list) with inline #tags.
func collectTags(front map[string]any, body string) []string {
	seen := make(map[string]bool)

	add := func(tag string) {
		tag = strings.TrimSpace(strings.TrimPrefix(tag, "#"))
		if tag != "" && !seen[tag] {
			seen[tag] = true
		}
	}

	switch v := front["tags"].(type) {
	case string:
		for _, t := range strings.Split(v, ",") {
			add(t)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}

	for _, m := range inlineTagRe.FindAllStringSubmatch(body, -1) {
		add(m[2])
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
