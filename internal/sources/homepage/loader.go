// Package homepage imports bookmarks from Homepage (gethomepage.dev)
// configuration documents: bookmarks.yaml, or services.yaml whose service
// links are imported as bookmarks.
package homepage

import (
	"errors"
	"fmt"
	"io"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

// ErrTooLarge is returned when a document exceeds the reader limit.
var ErrTooLarge = errors.New("homepage document too large")

var templateVariable = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Read parses at most maxBytes from r.
func Read(r io.Reader, maxBytes int64) ([]domain.BookmarkInput, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read homepage document: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return Parse(data)
}

// Parse reads a bookmarks.yaml or services.yaml document. The returned inputs
// carry no user: the importer sets it.
func Parse(data []byte) ([]domain.BookmarkInput, error) {
	// Strip Homepage template variables ({{HOMEPAGE_VAR_...}})
	data = stripTemplateVariables(data)

	var bookmarks BookmarksConfig
	bmErr := yaml.Unmarshal(data, &bookmarks)
	if bmErr == nil {
		return MapBookmarks(bookmarks)
	}

	var services ServicesConfig
	if err := yaml.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("%w: not a homepage bookmarks or services document: %v", domain.ErrInvalidInput, bmErr)
	}
	return MapServices(services)
}

// stripTemplateVariables removes Homepage template variables from YAML
// Example: {{HOMEPAGE_VAR_ADGUARD_USER}} -> ""
func stripTemplateVariables(data []byte) []byte {
	return templateVariable.ReplaceAll(data, []byte(`""`))
}
