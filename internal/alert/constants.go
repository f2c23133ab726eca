package alert

import "strings"

// CriticalKeywords mark an alert title or description as urgent.
var CriticalKeywords = []string{
	"down",
	"failed",
	"error",
	"critical",
	"emergency",
	"outage",
	"unavailable",
	"timeout",
	"crashed",
}

// HighPriorityServices are services whose alerts always surface as action items.
var HighPriorityServices = []string{"api", "database", "payment", "auth", "core"}

// ContainsCriticalKeyword reports whether text mentions any critical keyword as a word.
func ContainsCriticalKeyword(text string) bool {
	for _, w := range words(text) {
		for _, k := range CriticalKeywords {
			if w == k {
				return true
			}
		}
	}
	return false
}

// IsHighPriorityService reports whether name matches, or is prefixed by, a high-priority service.
func IsHighPriorityService(name string) bool {
	name = strings.ToLower(name)
	if name == "" {
		return false
	}
	for _, s := range HighPriorityServices {
		if name == s || strings.HasPrefix(name, s+"-") || strings.HasPrefix(name, s+"_") {
			return true
		}
	}
	return false
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}
