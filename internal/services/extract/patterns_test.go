package extract

import (
	"testing"
)

func TestMatchPhone(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		minDigits int
		want      string
	}{
		{"international with separators", "Call +1 (202) 555-0123 today", 7, "+1 (202) 555-0123"},
		{"plain local number", "Phone: 9841 2233", 7, "9841 2233"},
		{"too few digits skipped", "Suite 12-345", 7, ""},
		{"too many digits skipped", "ref 12345678901234567890", 7, ""},
		{"first valid candidate wins", "12-34 then 02 9555 1234", 7, "02 9555 1234"},
		{"empty text", "", 7, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchPhone(tt.text, tt.minDigits)
			if got != tt.want {
				t.Errorf("MatchPhone(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestMatchEmails(t *testing.T) {
	t.Run("dedupes case-insensitively in discovery order", func(t *testing.T) {
		text := "Contact Sales@Acme.com or support@acme.com, again sales@acme.com"
		got := MatchEmails(text)
		if len(got) != 2 {
			t.Fatalf("expected 2 emails, got %d: %v", len(got), got)
		}
		if got[0] != "Sales@Acme.com" || got[1] != "support@acme.com" {
			t.Errorf("unexpected order/values: %v", got)
		}
	})

	t.Run("filters junk matches", func(t *testing.T) {
		text := "icon@2x.png noreply@acme.com you@example.com real@business.io"
		got := MatchEmails(text)
		if len(got) != 1 || got[0] != "real@business.io" {
			t.Errorf("expected only the real address, got %v", got)
		}
	})

	t.Run("nil when nothing matches", func(t *testing.T) {
		if got := MatchEmails("no addresses here"); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		label string
		want  float64
	}{
		{"4.6 stars 1,284 Reviews", 4.6},
		{"5.0 stars", 5.0},
		{"3 stars 12 Reviews", 3},
		{"No rating", 0},
	}
	for _, tt := range tests {
		if got := ParseRating(tt.label); got != tt.want {
			t.Errorf("ParseRating(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}

func TestParseReviewCount(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{"4.6 stars 1,284 Reviews", 1284},
		{"4.6 stars 7 Reviews", 7},
		{"4.6 stars", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseReviewCount(tt.label); got != tt.want {
			t.Errorf("ParseReviewCount(%q) = %d, want %d", tt.label, got, tt.want)
		}
	}
}

func TestIsDomainLikeLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"acmeplumbing.com.au", true},
		{"www.acme.io", true},
		{"Open · Closes 5 pm", false},   // multiple tokens
		{"X7Q4+F2 Sydney", false},       // plus code
		{"4.6", false},                  // no letters
		{"maps.google.com/place", false}, // host platform
		{"", false},
	}
	for _, tt := range tests {
		if got := IsDomainLikeLine(tt.line); got != tt.want {
			t.Errorf("IsDomainLikeLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestIsSocialURL(t *testing.T) {
	if !IsSocialURL("https://www.facebook.com/acmeplumbing") {
		t.Error("expected facebook profile to be social")
	}
	if IsSocialURL("https://acmeplumbing.com.au") {
		t.Error("expected business site to not be social")
	}
}
