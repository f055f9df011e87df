package homepage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

// MapBookmarks converts bookmarks.yaml entries to inputs, in document order.
// The bookmark name is the title; entries without a usable href are skipped.
func MapBookmarks(config BookmarksConfig) ([]domain.BookmarkInput, error) {
	m := newCollector()
	for _, category := range config {
		for _, bookmarkList := range category {
			for _, bookmarkMap := range bookmarkList {
				for name, entries := range bookmarkMap {
					// Each bookmark has a list with a single entry
					if len(entries) == 0 {
						continue
					}
					title := name
					if title == "" {
						title = entries[0].Abbr
					}
					m.add(entries[0].Href, title)
				}
			}
		}
	}
	return m.result()
}

// MapServices converts services.yaml entries to inputs; the service name is the title.
func MapServices(config ServicesConfig) ([]domain.BookmarkInput, error) {
	m := newCollector()
	for _, group := range config {
		for _, services := range group {
			for _, serviceMap := range services {
				for name, props := range serviceMap {
					m.add(props.Href, name)
				}
			}
		}
	}
	return m.result()
}

// collector keeps the first occurrence of every URL.
type collector struct {
	seen map[string]bool
	out  []domain.BookmarkInput
}

func newCollector() *collector {
	return &collector{seen: map[string]bool{}}
}

func (c *collector) add(href, title string) {
	href = strings.TrimSpace(href)
	title = strings.TrimSpace(title)
	if !isWebURL(href) || title == "" || c.seen[href] {
		return
	}
	c.seen[href] = true
	c.out = append(c.out, domain.BookmarkInput{URL: href, Title: title})
}

func (c *collector) result() ([]domain.BookmarkInput, error) {
	if len(c.out) == 0 {
		return nil, fmt.Errorf("%w: no valid bookmarks found in document", domain.ErrInvalidInput)
	}
	return c.out, nil
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
