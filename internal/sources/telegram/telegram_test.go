package telegram

import (
	"testing"
)

func TestFirstLineTruncatesLongTitles(t *testing.T) {
	content := "A short headline\nrest of the message body"
	if got := firstLine(content); got != "A short headline" {
		t.Errorf("firstLine = %q, want %q", got, "A short headline")
	}

	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	if got := firstLine(long); len(got) != 120 {
		t.Errorf("expected long single-line content truncated to 120 runes, got %d", len(got))
	}
}

func TestExtractBackgroundImageURL(t *testing.T) {
	style := `background-image:url('https://cdn.example.com/photo.jpg')`
	if got := extractBackgroundImageURL(style); got != "https://cdn.example.com/photo.jpg" {
		t.Errorf("extractBackgroundImageURL = %q, want the unquoted URL", got)
	}
	if got := extractBackgroundImageURL("no-url-here"); got != "" {
		t.Errorf("expected empty string when no url() present, got %q", got)
	}
}
