package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Lllllllleong/documentextraction/internal/models"
)

var supportedExtensions = []string{".pdf", ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".gif", ".webp"}

func isSupported(path string) bool {
	return slices.Contains(supportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// collectDocuments reads every supported file named by paths, walking
// directories. Files named explicitly are read whatever their extension.
func collectDocuments(paths []string) ([]models.Document, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isSupported(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}

	docs := make([]models.Document, 0, len(files))
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		docs = append(docs, models.Document{Name: filepath.Base(f), Content: content})
	}
	return docs, nil
}
