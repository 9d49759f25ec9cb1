package audit

import (
	"slices"
	"strings"
)

// Level selects how much of a CapturedRequest a detailed entry renders.
type Level string

const (
	LevelInfo  Level = "info"
	LevelFull  Level = "full"
	LevelDebug Level = "debug"
)

// ParseLevel normalizes a configured level. Unknown values are kept as-is and
// format like LevelInfo.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelInfo
	}
	return Level(s)
}

func (l Level) String() string { return string(l) }

// bodyExemptMethods never carry their body into audit entries.
var bodyExemptMethods = []string{"GET", "COPY", "HEAD", "PURGE", "UNLOCK"}

// IsBodyExempt reports whether method belongs to the no-body set.
func IsBodyExempt(method string) bool {
	return slices.Contains(bodyExemptMethods, strings.ToUpper(method))
}
