package handlers

import (
	"net/url"
	"strings"
)

const defaultNext = "/"

// SafeNext returns next when it is a same-origin relative path, "/" otherwise.
// Browsers treat "//host" and "/\host" as another origin.
func SafeNext(next string) string {
	if next == "" || next[0] != '/' {
		return defaultNext
	}
	if len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return defaultNext
	}
	if strings.IndexFunc(next, func(r rune) bool { return r < 0x20 || r == 0x7f }) >= 0 {
		return defaultNext
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return defaultNext
	}
	return next
}
