package utils

import (
	"net/url"
	"strings"

	"qrelay/internal/constants"
)

// NormalizeServerURL trims trailing slash and determines if TLS verification should be skipped
func NormalizeServerURL(serverURL string) (string, bool) {
	serverURL = strings.TrimSuffix(strings.TrimSpace(serverURL), "/")
	if !strings.Contains(serverURL, "://") {
		serverURL = "http://" + serverURL
	}
	useHTTPS := strings.HasPrefix(serverURL, "https://")
	skipTLSVerify := useHTTPS && (strings.Contains(serverURL, "localhost") ||
		strings.Contains(serverURL, "127.0.0.1"))
	return serverURL, skipTLSVerify
}

// JoinPath is the path a sender opens to pair with sessionID.
func JoinPath(sessionID string) string {
	return constants.PathJoin + sessionID
}

// ExtractSessionID accepts either a bare session id or a join URL and returns
// the session id.
func ExtractSessionID(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "/") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}

// BaseURL strips the path from a join URL, leaving scheme and host.
func BaseURL(s string) string {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
