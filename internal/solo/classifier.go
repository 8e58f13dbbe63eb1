package solo

import "strings"

// Classification is the outcome of grading one student response.
type Classification struct {
	Level         Level
	Justification string
}

type classifyRule struct {
	matches       func(text string) bool
	level         Level
	justification string
}

// classifyRules is evaluated top-down; the first matching rule wins.
var classifyRules = []classifyRule{
	{
		matches:       containsAny("meaning", "symbol"),
		level:         Relational,
		justification: "Student connects elements to symbolic interpretation.",
	},
	{
		matches:       containsAny("red", "blue", "window", "light"),
		level:         MultiStructural,
		justification: "Student lists multiple relevant features.",
	},
	{
		matches:       func(text string) bool { return strings.TrimSpace(text) != "" },
		level:         UniStructural,
		justification: "Student mentions one relevant detail.",
	},
	{
		matches:       func(string) bool { return true },
		level:         PreStructural,
		justification: "Student response is incomplete or off-topic.",
	},
}

// Classify maps a free-text response onto a SOLO level using keyword
// heuristics. It never produces ExtendedAbstract.
func Classify(response string) Classification {
	text := strings.ToLower(response)
	for _, rule := range classifyRules {
		if rule.matches(text) {
			return Classification{Level: rule.level, Justification: rule.justification}
		}
	}
	// Unreachable: the last rule always matches.
	return Classification{Level: PreStructural}
}

func containsAny(words ...string) func(string) bool {
	return func(text string) bool {
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}
}
