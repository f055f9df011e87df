package utils

import (
	"net/http"
	"strings"
)

// RequestOrigin returns the scheme://host the browser used to reach us.
// publicURL, when set, wins over anything derived from the request.
// X-Forwarded-Proto is only honoured when trustProxy is true.
func RequestOrigin(r *http.Request, trustProxy bool, publicURL string) string {
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/")
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if trustProxy {
		proto := strings.ToLower(strings.TrimSpace(FirstForwardedFor(r.Header.Get("X-Forwarded-Proto"))))
		if proto == "http" || proto == "https" {
			scheme = proto
		}
	}
	return scheme + "://" + r.Host
}
