package chat

import "strings"

// visionKeywords trigger attachment of queued screenshots. The list is a
// fixed English heuristic matched as case-insensitive substrings.
var visionKeywords = []string{
	"screen", "image", "picture", "photo", "see", "look", "show", "display",
	"visual", "screenshot", "what do you see", "describe", "analyze",
	"this", "that", "here", "current", "now", "interface", "ui", "page",
}

// IsVisionQuery reports whether text refers to something visual.
func IsVisionQuery(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range visionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
