package realtime

import "net/url"

// OriginPatterns derives the WebSocket origin allowlist from the
// configured public URL. An empty or unparsable URL yields no patterns,
// leaving the library's same-origin default in force.
func OriginPatterns(publicURL string) []string {
	u, err := url.Parse(publicURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
