package homepage

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

const bookmarksYAML = `---
- Developer:
    - Github:
        - abbr: GH
          href: https://github.com/
    - Go:
        - abbr: GO
          href: https://go.dev/
- Social:
    - Reddit:
        - icon: reddit.png
          href: https://reddit.com/
    - Secret:
        - abbr: SE
          href: {{HOMEPAGE_VAR_SECRET_URL}}
`

const servicesYAML = `---
- Infrastructure:
    - AdGuard Home:
        icon: adguard-home.svg
        href: https://adguard.domain.ext
        description: Network-wide ads & trackers blocking DNS server
    - Traefik:
        href: https://traefik.domain.ext
`

func TestParseBookmarks(t *testing.T) {
	inputs, err := Parse([]byte(bookmarksYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []domain.BookmarkInput{
		{URL: "https://github.com/", Title: "Github"},
		{URL: "https://go.dev/", Title: "Go"},
		{URL: "https://reddit.com/", Title: "Reddit"},
	}
	if len(inputs) != len(want) {
		t.Fatalf("Parse() returned %d inputs, want %d: %+v", len(inputs), len(want), inputs)
	}
	for i := range want {
		if inputs[i] != want[i] {
			t.Errorf("inputs[%d] = %+v, want %+v", i, inputs[i], want[i])
		}
	}
}

func TestParseServices(t *testing.T) {
	inputs, err := Parse([]byte(servicesYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("Parse() returned %d inputs, want 2", len(inputs))
	}
	if inputs[0].Title != "AdGuard Home" || inputs[0].URL != "https://adguard.domain.ext" {
		t.Errorf("inputs[0] = %+v", inputs[0])
	}
	if inputs[0].UserID != "" {
		t.Error("Parse() must not set the owner")
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "empty", doc: ""},
		{name: "not yaml", doc: "::: [ nope"},
		{name: "scalar", doc: "just a string"},
		{name: "only template hrefs", doc: "- A:\n    - B:\n        - href: {{HOMEPAGE_VAR_X}}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("Parse() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestReadLimit(t *testing.T) {
	if _, err := Read(strings.NewReader(bookmarksYAML), 16); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Read() error = %v, want ErrTooLarge", err)
	}

	inputs, err := Read(strings.NewReader(bookmarksYAML), int64(len(bookmarksYAML)))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(inputs) != 3 {
		t.Errorf("Read() returned %d inputs, want 3", len(inputs))
	}
}

func TestStripTemplateVariablesFunc(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "single template variable",
			input:    []byte("url: {{HOMEPAGE_VAR_URL}}"),
			expected: "url: \"\"",
		},
		{
			name:     "no template variables",
			input:    []byte("plain text"),
			expected: "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := stripTemplateVariables(tt.input)
			if string(result) != tt.expected {
				t.Errorf("stripTemplateVariables() = %q, want %q", string(result), tt.expected)
			}
		})
	}
}
