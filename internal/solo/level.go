// Package solo models the SOLO taxonomy: response classification and
// next-step prompts that move a student from one level toward another.
package solo

import (
	"strings"

	"golang.org/x/text/cases"
)

// Level is a SOLO taxonomy level.
type Level string

const (
	PreStructural    Level = "Pre-structural"
	UniStructural    Level = "Uni-structural"
	MultiStructural  Level = "Multi-structural"
	Relational       Level = "Relational"
	ExtendedAbstract Level = "Extended-abstract"
)

// Levels lists every level in ascending order.
var Levels = []Level{PreStructural, UniStructural, MultiStructural, Relational, ExtendedAbstract}

// Rank returns the ordinal position of the level, or -1 when unknown.
func (l Level) Rank() int {
	for i, lv := range Levels {
		if lv == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the five canonical levels.
func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// Less reports whether l sits strictly below other on the taxonomy.
func (l Level) Less(other Level) bool {
	return l.Rank() < other.Rank()
}

func (l Level) String() string {
	return string(l)
}

// ParseLevel resolves a level name case-insensitively, accepting
// "multi-structural", "MULTI-STRUCTURAL" or "Multi structural".
func ParseLevel(s string) (Level, bool) {
	want := normalize(s)
	if want == "" {
		return "", false
	}
	for _, lv := range Levels {
		if normalize(string(lv)) == want {
			return lv, true
		}
	}
	return "", false
}

func normalize(s string) string {
	s = cases.Fold().String(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	return s
}
