package ai

import (
	"strings"
	"testing"
)

func TestSanitizeForPromptCollapsesWhitespaceAndStripsCR(t *testing.T) {
	got := sanitizeForPrompt("line one\r\n\r\n   line   two  ", 1000)
	if strings.Contains(got, "\r") {
		t.Errorf("expected carriage returns stripped, got %q", got)
	}
	if got != "line one line two" {
		t.Errorf("expected collapsed whitespace, got %q", got)
	}
}

func TestSanitizeForPromptTruncatesAtSentenceBoundary(t *testing.T) {
	content := strings.Repeat("a", 50) + ". " + strings.Repeat("b", 50) + ". " + strings.Repeat("c", 50)
	got := sanitizeForPrompt(content, 60)
	if !strings.HasSuffix(got, "[TRUNCATED]") {
		t.Errorf("expected truncation marker, got %q", got)
	}
	if strings.Contains(got, strings.Repeat("c", 50)) {
		t.Errorf("expected content past the truncation boundary to be dropped")
	}
}

func TestSanitizeForPromptLeavesShortContentUnchanged(t *testing.T) {
	got := sanitizeForPrompt("short", 100)
	if got != "short" {
		t.Errorf("expected unchanged short content, got %q", got)
	}
}

func TestParseUnifiedAnalysisExtractsJSONFromSurroundingText(t *testing.T) {
	raw := "Here is the result:\n```json\n" + `{"optimized_title":"T","summary":"S","categories":[{"name":"tech","confidence":0.9}]}` + "\n```"
	result, err := parseUnifiedAnalysis(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary != "S" || result.OptimizedTitle != "T" {
		t.Errorf("unexpected parsed result: %+v", result)
	}
	if result.AdType != AdNone {
		t.Errorf("expected default ad type 'none', got %q", result.AdType)
	}
}

func TestParseUnifiedAnalysisRejectsMissingSummary(t *testing.T) {
	raw := `{"optimized_title":"T"}`
	if _, err := parseUnifiedAnalysis(raw); err == nil {
		t.Fatal("expected an error when summary is missing")
	}
}

func TestParseUnifiedAnalysisRejectsNonJSONResponse(t *testing.T) {
	if _, err := parseUnifiedAnalysis("I cannot help with that."); err == nil {
		t.Fatal("expected an error when no JSON object is present")
	}
}
