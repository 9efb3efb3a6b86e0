package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitShortText(t *testing.T) {
	s := NewSplitter(100, 10)
	got := s.Split("  one short paragraph  ")
	if len(got) != 1 || got[0] != "one short paragraph" {
		t.Fatalf("unexpected chunks %q", got)
	}
	if s.Split(" \n ") != nil {
		t.Fatalf("blank text must produce no chunks")
	}
}

func TestSplitPrefersParagraphs(t *testing.T) {
	first := strings.Repeat("a", 30)
	second := strings.Repeat("b", 30)
	s := NewSplitter(40, 0)

	got := s.Split(first + "\n\n" + second)
	if len(got) != 2 || got[0] != first || got[1] != second {
		t.Fatalf("expected paragraph split, got %q", got)
	}
}

func TestSplitHardCutWithOverlap(t *testing.T) {
	s := NewSplitter(4, 1)
	got := s.Split("abcdefghij")
	want := []string{"abcd", "defg", "ghij"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Split() = %q, want %q", got, want)
	}
}

func TestSplitRespectsChunkSize(t *testing.T) {
	text := strings.Repeat("Сделка одобрена. Риски умеренные; бюджет согласован! ", 40)
	s := NewSplitter(120, 30)
	for i, chunk := range s.Split(text) {
		if n := utf8.RuneCountInString(chunk); n > 120 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
	}
}

func TestNewSplitterNormalizesSettings(t *testing.T) {
	s := NewSplitter(0, -5)
	if s.ChunkSize != DefaultChunkSize || s.Overlap != 0 {
		t.Fatalf("unexpected defaults %+v", s)
	}
	s = NewSplitter(100, 100)
	if s.Overlap != 25 {
		t.Fatalf("expected overlap clamp to 25, got %d", s.Overlap)
	}
}
