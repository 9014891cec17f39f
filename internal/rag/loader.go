package rag

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/embedkit/ragchat/internal/domain"
)

// LoaderConfig bounds corpus loading.
type LoaderConfig struct {
	MaxDocChars  int
	ChunkSize    int
	ChunkOverlap int
}

// LoadCorpus walks root for .md/.txt files and splits each into
// overlapping chunks with locale and source metadata. A missing root is
// not an error; it yields an empty corpus.
func LoadCorpus(root string, cfg LoaderConfig) ([]domain.Document, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat corpus root: %w", err)
	}

	var docs []domain.Document
	seq := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if !strings.HasSuffix(name, ".md") && !strings.HasSuffix(name, ".txt") {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		text := string(raw)
		if r := []rune(text); cfg.MaxDocChars > 0 && len(r) > cfg.MaxDocChars {
			text = string(r[:cfg.MaxDocChars])
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		locale := guessLocale(path)
		title := deriveTitle(d.Name(), text)
		url := "file://" + filepath.ToSlash(rel)

		chunks := chunk(text, cfg.ChunkSize, cfg.ChunkOverlap)
		for i, c := range chunks {
			seq++
			docs = append(docs, domain.Document{
				ID:     fmt.Sprintf("d%d", seq),
				Title:  fmt.Sprintf("%s (part %d/%d)", title, i+1, len(chunks)),
				URL:    fmt.Sprintf("%s#part-%d", url, i+1),
				Text:   c,
				Locale: locale,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus: %w", err)
	}
	return docs, nil
}

// guessLocale reads a locale hint out of the path: a locale directory
// ("/ko/") or filename suffix ("_ko.md"). Defaults to Korean.
func guessLocale(path string) string {
	p := strings.ToLower(filepath.ToSlash(path))
	for _, loc := range []string{"ko", "ja", "en"} {
		if strings.Contains(p, "/"+loc+"/") ||
			strings.HasSuffix(p, "_"+loc+".md") || strings.HasSuffix(p, "_"+loc+".txt") {
			return loc
		}
	}
	return domain.LocaleKorean
}

// deriveTitle takes the first markdown heading, else the first non-empty
// line (truncated), else the filename.
func deriveTitle(filename, text string) string {
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if strings.HasPrefix(t, "#") {
			return strings.TrimSpace(strings.TrimLeft(t, "#"))
		}
		r := []rune(t)
		if len(r) > 80 {
			return string(r[:80]) + "…"
		}
		return t
	}
	return filename
}

// chunk splits text into size-rune windows stepping size-overlap forward.
// Rune-based so multibyte text never splits mid-character. size <= 0
// disables chunking.
func chunk(text string, size, overlap int) []string {
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	var out []string
	start := 0
	for start < len(runes) {
		end := min(len(runes), start+size)
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = max(end-overlap, start+1)
	}
	return out
}
