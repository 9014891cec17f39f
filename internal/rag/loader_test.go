package rag

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/embedkit/ragchat/internal/domain"
)

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadCorpus_MissingRoot(t *testing.T) {
	docs, err := LoadCorpus(filepath.Join(t.TempDir(), "nope"), LoaderConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docs != nil {
		t.Errorf("expected empty corpus, got %d docs", len(docs))
	}
}

func TestLoadCorpus_SkipsNonText(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "guide.md", "# Guide\nsome text")
	writeDoc(t, dir, "notes.txt", "plain notes")
	writeDoc(t, dir, "image.png", "\x89PNG")
	writeDoc(t, dir, "data.json", "{}")

	docs, err := LoadCorpus(dir, LoaderConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
}

func TestLoadCorpus_Metadata(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, filepath.Join("en", "shipping.md"), "# Shipping Guide\n\nrates and times")

	docs, err := LoadCorpus(dir, LoaderConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(docs))
	}
	d := docs[0]
	if d.Locale != domain.LocaleEnglish {
		t.Errorf("expected locale en, got %q", d.Locale)
	}
	if !strings.HasPrefix(d.Title, "Shipping Guide") {
		t.Errorf("expected heading-derived title, got %q", d.Title)
	}
	if !strings.HasPrefix(d.URL, "file://en/shipping.md#part-") {
		t.Errorf("unexpected URL %q", d.URL)
	}
	if d.ID == "" {
		t.Error("expected non-empty ID")
	}
}

func TestLoadCorpus_LocaleFromSuffix(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "faq_en.md", "faq content")
	writeDoc(t, dir, "faq.md", "기본 문서")

	docs, err := LoadCorpus(dir, LoaderConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	byTitle := map[string]string{}
	for _, d := range docs {
		byTitle[d.URL] = d.Locale
	}
	if byTitle["file://faq_en.md#part-1"] != domain.LocaleEnglish {
		t.Errorf("suffix locale: got %v", byTitle)
	}
	if byTitle["file://faq.md#part-1"] != domain.LocaleKorean {
		t.Errorf("default locale: got %v", byTitle)
	}
}

func TestLoadCorpus_ChunksWithOverlap(t *testing.T) {
	dir := t.TempDir()
	text := strings.Repeat("가나다라마바사아", 10) // 80 runes
	writeDoc(t, dir, "long.md", text)

	docs, err := LoadCorpus(dir, LoaderConfig{ChunkSize: 30, ChunkOverlap: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) < 3 {
		t.Fatalf("expected multiple chunks, got %d", len(docs))
	}
	for _, d := range docs {
		if n := len([]rune(d.Text)); n > 30 {
			t.Errorf("chunk longer than size: %d runes", n)
		}
	}
	// Consecutive chunks share the overlap region.
	first := []rune(docs[0].Text)
	second := []rune(docs[1].Text)
	if string(first[len(first)-10:]) != string(second[:10]) {
		t.Error("expected 10-rune overlap between consecutive chunks")
	}
}

func TestLoadCorpus_TruncatesAtMaxChars(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "big.txt", strings.Repeat("한", 100))

	docs, err := LoadCorpus(dir, LoaderConfig{MaxDocChars: 40})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var total int
	for _, d := range docs {
		total += len([]rune(d.Text))
	}
	if total != 40 {
		t.Errorf("expected 40 runes after truncation, got %d", total)
	}
}

func TestChunk_SmallTextSinglePiece(t *testing.T) {
	got := chunk("short", 100, 10)
	if len(got) != 1 || got[0] != "short" {
		t.Errorf("expected single chunk, got %v", got)
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name, filename, text, want string
	}{
		{"heading", "f.md", "## Deep Heading\nbody", "Deep Heading"},
		{"first line", "f.md", "\n\nPlain first line\nmore", "Plain first line"},
		{"fallback", "f.md", "   \n\t\n", "f.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveTitle(tt.filename, tt.text); got != tt.want {
				t.Errorf("deriveTitle = %q, want %q", got, tt.want)
			}
		})
	}
}
