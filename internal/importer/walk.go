package importer

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ScanDir walks root and parses every Markdown file, skipping hidden
// directories (including Obsidian's .obsidian) and non-Markdown files. A
// single unparseable file is logged and skipped, not fatal: a vault import
// should not stop at its one malformed note.
func ScanDir(root string) ([]*Note, error) {
	var notes []*Note

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("importer: read %s: %w", path, err)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}

		note, err := ParseNote(content, rel)
		if err != nil {
			log.Printf("importer: skipping %s: %v", rel, err)
			return nil
		}
		if note.Content == "" {
			return nil
		}
		notes = append(notes, note)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("importer: walk %s: %w", root, err)
	}

	return notes, nil
}
