package ws

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// newOriginChecker builds an upgrader CheckOrigin func. "*" allows every
// origin; requests without an Origin header (non-browser clients) pass.
func newOriginChecker(allowed []string) func(r *http.Request) bool {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			allowAll = true
			continue
		}
		if normalized, ok := normalizeOrigin(trimmed); ok {
			set[normalized] = struct{}{}
		} else if trimmed != "" {
			zap.L().Warn("ws.origin_ignored", zap.String("origin", origin))
		}
	}

	return func(r *http.Request) bool {
		header := r.Header.Get("Origin")
		if allowAll || header == "" {
			return true
		}
		normalized, ok := normalizeOrigin(header)
		if ok {
			if _, found := set[normalized]; found {
				return true
			}
		}
		zap.L().Warn("ws.origin_blocked", zap.String("origin", header))
		return false
	}
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
