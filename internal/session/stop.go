package session

import "strings"

// stopRequested reports whether the reply ends the trading day. The stop
// token counts only when it appears on the final non-empty line of the
// reply, so a mid-reply mention while reasoning does not end the session.
func stopRequested(content, token string) bool {
	if token == "" {
		return false
	}
	lines := strings.Split(content, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		return strings.Contains(line, token)
	}
	return false
}
